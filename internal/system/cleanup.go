package system

import (
	"time"

	"github.com/voxelnet/server/internal/core/ecs"
	coresys "github.com/voxelnet/server/internal/core/system"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end.
// Phase 6 (Cleanup).
type CleanupSystem struct {
	store *ecs.Store
}

func NewCleanupSystem(store *ecs.Store) *CleanupSystem {
	return &CleanupSystem{store: store}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.store.FlushDestroyQueue()
}
