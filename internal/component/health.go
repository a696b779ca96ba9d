package component

import (
	"fmt"

	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net/packet"
)

const TypeHealth = "Health"

// Health tracks hit points. Current stays within [0, Max].
type Health struct {
	ecs.DirtyFlag

	Current int32
	Max     int32
}

func NewHealth(maxHP int32) *Health {
	return &Health{Current: maxHP, Max: maxHP}
}

func (h *Health) TypeName() string { return TypeHealth }

func (h *Health) Serialize(w *packet.Writer) {
	w.WriteI32(h.Current)
	w.WriteI32(h.Max)
}

func (h *Health) Deserialize(r *packet.Reader) error {
	cur, maxHP := r.ReadI32(), r.ReadI32()
	if err := r.Err(); err != nil {
		return err
	}
	if maxHP < 0 || cur < 0 || cur > maxHP {
		return fmt.Errorf("%w: health %d/%d", packet.ErrMalformed, cur, maxHP)
	}
	h.Current, h.Max = cur, maxHP
	return nil
}

// Damage subtracts n, never going below zero. Negative n heals.
func (h *Health) Damage(n int32) {
	cur := h.Current - n
	if cur < 0 {
		cur = 0
	}
	if cur > h.Max {
		cur = h.Max
	}
	if cur != h.Current {
		h.Current = cur
		h.MarkDirty()
	}
}

func (h *Health) Dead() bool { return h.Current == 0 }
