package system

import (
	"context"
	"time"

	coresys "github.com/voxelnet/server/internal/core/system"
	"github.com/voxelnet/server/internal/persist"
	"go.uber.org/zap"
)

// SnapshotSaver stores a world snapshot. persist.SnapshotRepo implements it.
type SnapshotSaver interface {
	Save(ctx context.Context, snap *persist.Snapshot) error
}

// Exporter captures the authoritative world. world.State implements it.
type Exporter interface {
	Export() *persist.Snapshot
}

// PersistenceSystem periodically saves the authoritative world.
// Phase 5 (Persist).
type PersistenceSystem struct {
	world     Exporter
	repo      SnapshotSaver
	log       *zap.Logger
	tickCount int
	interval  int // save every N ticks
	timeout   time.Duration
}

func NewPersistenceSystem(w Exporter, repo SnapshotSaver, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	return &PersistenceSystem{
		world:    w,
		repo:     repo,
		log:      log,
		interval: intervalTicks,
		timeout:  5 * time.Second,
	}
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.SaveNow(ctx); err != nil {
		s.log.Error("自動存檔失敗", zap.Error(err))
	}
}

// SaveNow writes a snapshot immediately. Called on graceful shutdown.
func (s *PersistenceSystem) SaveNow(ctx context.Context) error {
	snap := s.world.Export()
	start := time.Now()
	if err := s.repo.Save(ctx, snap); err != nil {
		return err
	}
	s.log.Debug("世界快照已儲存",
		zap.Int("entities", len(snap.Entities)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}
