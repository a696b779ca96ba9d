package ecs

import (
	"time"

	"github.com/voxelnet/server/internal/net/packet"
)

// Component is a replicated piece of entity state. TypeName is its wire
// identity and must be unique across the registry; Serialize and
// Deserialize must be exact inverses.
type Component interface {
	TypeName() string
	Serialize(w *packet.Writer)
	Deserialize(r *packet.Reader) error

	MarkDirty()
	IsDirty() bool
	ClearDirty()
}

// Optional lifecycle hooks. The store calls them when present.
type (
	// Initializer runs after the component is attached to e.
	Initializer interface {
		Initialize(e *Entity)
	}
	// Uninitializer runs before the component is detached from e.
	Uninitializer interface {
		Uninitialize(e *Entity)
	}
	// Updater runs once per tick during the pre-order update walk.
	Updater interface {
		Update(e *Entity, dt time.Duration)
	}
	// Renderer runs during the pre-order render walk.
	Renderer interface {
		Render(e *Entity)
	}
)

// DirtyFlag implements the dirty half of Component. Embed it by value.
type DirtyFlag struct {
	dirty bool
}

func (d *DirtyFlag) MarkDirty()    { d.dirty = true }
func (d *DirtyFlag) IsDirty() bool { return d.dirty }
func (d *DirtyFlag) ClearDirty()   { d.dirty = false }
