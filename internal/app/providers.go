// Package app assembles the authority server and the observer client from
// their parts and drives their tick loops.
package app

import (
	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/config"
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net"
	"github.com/voxelnet/server/internal/permission"
	"github.com/voxelnet/server/internal/rpc"
	"github.com/voxelnet/server/internal/scripting"
	"github.com/voxelnet/server/internal/world"
	"go.uber.org/zap"
)

// ObserverIDBase keeps ids an observer allocates for its own entities out
// of the range the authority hands out.
const ObserverIDBase = 1 << 31

func ProvideServerStore(log *zap.Logger) *ecs.Store {
	return ecs.NewStore(ecs.NewIDAllocator(0), log)
}

func ProvideObserverStore(log *zap.Logger) *ecs.Store {
	return ecs.NewStore(ecs.NewIDAllocator(ObserverIDBase), log)
}

// ProvideComponents returns a registry holding every built-in component.
func ProvideComponents() (*ecs.Registry, error) {
	reg := ecs.NewRegistry()
	if err := component.RegisterAll(reg); err != nil {
		return nil, err
	}
	return reg, nil
}

func ProvidePermissions(cfg *config.Config, log *zap.Logger) (*permission.Manager, error) {
	kinds, err := permission.ParseKinds(cfg.Permission.DefaultGrants)
	if err != nil {
		return nil, err
	}
	return permission.NewManager(kinds, cfg.Permission.ElevationHash, log), nil
}

func ProvideHub(cfg *config.Config, log *zap.Logger) *net.Hub {
	return net.NewHub(net.SessionConfig{
		InQueueSize:      cfg.Network.InQueueSize,
		OutQueueSize:     cfg.Network.OutQueueSize,
		WriteTimeout:     cfg.Network.WriteTimeout,
		PacketsPerSecond: cfg.Network.PacketsPerSecond,
	}, log)
}

// ProvideScripts loads the Lua engine, or returns nil when scripting is off.
func ProvideScripts(cfg *config.Config, ws *world.State, log *zap.Logger) (*scripting.Engine, error) {
	if !cfg.Scripting.Enabled {
		return nil, nil
	}
	return scripting.NewEngine(cfg.Scripting.Dir, ws, log)
}

// ProvideServerChannel gates requests by the grant table, with the
// is_authorized hook on top when scripts are loaded.
func ProvideServerChannel(reg *rpc.Registry, perms *permission.Manager, scripts *scripting.Engine, log *zap.Logger) *rpc.Channel {
	var gate rpc.Gate = perms
	if scripts != nil {
		gate = scripting.NewPolicy(perms, scripts)
	}
	return rpc.NewChannel(reg, gate, log)
}

// ProvideObserverChannel serves the authority's broadcasts ungated.
func ProvideObserverChannel(reg *rpc.Registry, log *zap.Logger) *rpc.Channel {
	return rpc.NewChannel(reg, nil, log)
}
