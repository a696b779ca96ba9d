package system

import (
	"time"

	"github.com/voxelnet/server/internal/core/ecs"
	coresys "github.com/voxelnet/server/internal/core/system"
)

// Ticker is a script host that runs once per tick.
type Ticker interface {
	Update(dt time.Duration)
}

// UpdateSystem walks the entity tree, then runs the script on_update hook.
// Phase 2 (Update).
type UpdateSystem struct {
	store   *ecs.Store
	scripts Ticker
}

// NewUpdateSystem creates the system. scripts may be nil.
func NewUpdateSystem(store *ecs.Store, scripts Ticker) *UpdateSystem {
	return &UpdateSystem{store: store, scripts: scripts}
}

func (s *UpdateSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *UpdateSystem) Update(dt time.Duration) {
	s.store.Update(dt)
	if s.scripts != nil {
		s.scripts.Update(dt)
	}
}

// RenderSystem runs the render walk. Phase 3 (PostUpdate).
type RenderSystem struct {
	store *ecs.Store
}

func NewRenderSystem(store *ecs.Store) *RenderSystem {
	return &RenderSystem{store: store}
}

func (s *RenderSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *RenderSystem) Update(_ time.Duration) {
	s.store.Render()
}
