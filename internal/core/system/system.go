package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: poll transport, dispatch channels, drain task queue
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: entity tree walk, script hooks
	PhasePostUpdate              // 3: render walk
	PhaseOutput                  // 4: replication drain, rpc flush, session flush
	PhasePersist                 // 5: snapshot save
	PhaseCleanup                 // 6: destroy queued entities
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "Input"
	case PhasePreUpdate:
		return "PreUpdate"
	case PhaseUpdate:
		return "Update"
	case PhasePostUpdate:
		return "PostUpdate"
	case PhaseOutput:
		return "Output"
	case PhasePersist:
		return "Persist"
	case PhaseCleanup:
		return "Cleanup"
	default:
		return "Unknown"
	}
}

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
