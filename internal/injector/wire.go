//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package injector

import (
	"github.com/google/wire"
	"github.com/voxelnet/server/internal/app"
	"github.com/voxelnet/server/internal/config"
	"github.com/voxelnet/server/internal/persist"
	"go.uber.org/zap"
)

func InitializeServer(cfg *config.Config, log *zap.Logger, repo *persist.SnapshotRepo) (*app.Server, error) {
	wire.Build(ServerSet)
	return nil, nil
}

func InitializeObserver(cfg *config.Config, log *zap.Logger) (*app.Observer, error) {
	wire.Build(ObserverSet)
	return nil, nil
}
