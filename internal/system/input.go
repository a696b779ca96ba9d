package system

import (
	"time"

	coresys "github.com/voxelnet/server/internal/core/system"
	"github.com/voxelnet/server/internal/core/task"
	"github.com/voxelnet/server/internal/net"
	"github.com/voxelnet/server/internal/net/packet"
	"go.uber.org/zap"
)

// InputSystem admits and reaps peers, dispatches their queued messages by
// channel and runs work handed over from other goroutines. Phase 0 (Input).
type InputSystem struct {
	hub        *net.Hub
	registry   *packet.Registry
	tasks      *task.Queue
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(hub *net.Hub, registry *packet.Registry, tasks *task.Queue, maxPerTick int, log *zap.Logger) *InputSystem {
	return &InputSystem{
		hub:        hub,
		registry:   registry,
		tasks:      tasks,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	s.hub.Poll(s.maxPerTick, func(peer net.PeerID, data []byte) {
		if err := s.registry.Dispatch(peer, data); err != nil {
			s.log.Debug("封包分派錯誤",
				zap.Uint64("peer", peer),
				zap.Error(err),
			)
		}
	})
	if s.tasks != nil {
		s.tasks.Drain()
	}
}
