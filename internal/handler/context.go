package handler

import (
	"github.com/voxelnet/server/internal/core/event"
	"github.com/voxelnet/server/internal/permission"
	"github.com/voxelnet/server/internal/replication"
	"github.com/voxelnet/server/internal/rpc"
	"github.com/voxelnet/server/internal/world"
	"go.uber.org/zap"
)

// Deps holds shared dependencies injected into all RPC handlers.
type Deps struct {
	World    *world.State
	RPC      *rpc.Channel
	Producer *replication.Producer
	Perms    *permission.Manager
	Bus      *event.Bus
	Log      *zap.Logger
}

// RegisterAll registers the authority's request handlers.
func RegisterAll(reg *rpc.Registry, deps *Deps) {
	reg.Handle(rpc.KindCreateEntity, func(req rpc.Request) rpc.Message {
		return HandleCreateEntity(req.Peer, req.Msg.(*rpc.CreateEntity), deps)
	})
	reg.Handle(rpc.KindDestroyEntity, func(req rpc.Request) rpc.Message {
		HandleDestroyEntity(req.Peer, req.Msg.(*rpc.DestroyEntity), deps)
		return nil
	})
	reg.Handle(rpc.KindAddChild, func(req rpc.Request) rpc.Message {
		return HandleAddChild(req.Peer, req.Msg.(*rpc.AddChild), deps)
	})
	reg.Handle(rpc.KindRemoveChild, func(req rpc.Request) rpc.Message {
		HandleRemoveChild(req.Peer, req.Msg.(*rpc.RemoveChild), deps)
		return nil
	})
	reg.Handle(rpc.KindAddComponent, func(req rpc.Request) rpc.Message {
		return HandleAddComponent(req.Peer, req.Msg.(*rpc.AddComponent), deps)
	})
	reg.Handle(rpc.KindRemoveComponent, func(req rpc.Request) rpc.Message {
		return HandleRemoveComponent(req.Peer, req.Msg.(*rpc.RemoveComponent), deps)
	})
	reg.Handle(rpc.KindRequestFullSync, func(req rpc.Request) rpc.Message {
		HandleRequestFullSync(req.Peer, deps)
		return nil
	})
	reg.Handle(rpc.KindMoveEntity, func(req rpc.Request) rpc.Message {
		HandleMoveEntity(req.Peer, req.Msg.(*rpc.MoveEntity), deps)
		return nil
	})
	reg.Handle(rpc.KindElevate, func(req rpc.Request) rpc.Message {
		return HandleElevate(req.Peer, req.Msg.(*rpc.Elevate), deps)
	})
}

// RegisterObserver registers what an observer does with broadcasts from
// the authority.
func RegisterObserver(reg *rpc.Registry, ws *world.State, log *zap.Logger) {
	reg.Observe(rpc.KindMoveEntityResponse, func(peer uint64, msg rpc.Message) {
		ApplyMove(msg.(*rpc.MoveEntityResponse), ws, log)
	})
}
