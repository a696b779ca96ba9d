package handler

import (
	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/core/event"
	"github.com/voxelnet/server/internal/rpc"
	"go.uber.org/zap"
)

// HandleCreateEntity spawns the requested entity and tags it with its
// creator. A zero id in the response reports failure.
func HandleCreateEntity(peer uint64, m *rpc.CreateEntity, deps *Deps) *rpc.CreateEntityResponse {
	resp := &rpc.CreateEntityResponse{Name: m.Name, Parent: m.Parent}
	e, err := deps.World.Spawn(m.Name, m.Parent)
	if err != nil {
		deps.Log.Debug("建立實體失敗",
			zap.Uint64("peer", peer),
			zap.String("name", m.Name),
			zap.Error(err),
		)
		return resp
	}
	_ = deps.World.Store.AddComponent(e, &component.Owner{Peer: peer})

	resp.ID = e.ID()
	resp.Name = e.Name()
	event.Emit(deps.Bus, event.EntitySpawned{ID: e.ID(), Name: e.Name(), Parent: m.Parent, Peer: peer})
	deps.Log.Info("實體已建立",
		zap.Uint64("peer", peer),
		zap.Uint32("id", uint32(e.ID())),
		zap.String("name", e.Name()),
	)
	return resp
}

// HandleDestroyEntity removes an entity. Unknown ids are ignored.
func HandleDestroyEntity(peer uint64, m *rpc.DestroyEntity, deps *Deps) {
	if err := deps.World.Destroy(m.ID); err != nil {
		deps.Log.Debug("刪除實體失敗", zap.Uint64("peer", peer), zap.Error(err))
		return
	}
	event.Emit(deps.Bus, event.EntityDestroyed{ID: m.ID, Peer: peer})
}
