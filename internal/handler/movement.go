package handler

import (
	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/rpc"
	"github.com/voxelnet/server/internal/world"
	"go.uber.org/zap"
)

// HandleMoveEntity applies a move on the authority and broadcasts the
// result to every peer. The transform is not marked dirty, so the move is
// not replicated a second time through the sync channel.
func HandleMoveEntity(peer uint64, m *rpc.MoveEntity, deps *Deps) {
	tr, err := deps.World.Move(m.ID, toVec(m.Position), toVec(m.Rotation))
	if err != nil {
		deps.Log.Debug("移動實體失敗", zap.Uint64("peer", peer), zap.Error(err))
		return
	}
	deps.RPC.Broadcast(&rpc.MoveEntityResponse{
		ID:       m.ID,
		Position: fromVec(tr.Position),
		Rotation: fromVec(tr.Rotation),
	})
}

// ApplyMove applies a broadcast move to the local copy of the entity.
func ApplyMove(m *rpc.MoveEntityResponse, ws *world.State, log *zap.Logger) {
	if _, err := ws.Move(m.ID, toVec(m.Position), toVec(m.Rotation)); err != nil {
		log.Debug("套用移動失敗", zap.Uint32("id", uint32(m.ID)), zap.Error(err))
	}
}

func toVec(v rpc.Vec3) component.Vec3 {
	return component.Vec3{X: v[0], Y: v[1], Z: v[2]}
}

func fromVec(v component.Vec3) rpc.Vec3 {
	return rpc.Vec3{v.X, v.Y, v.Z}
}
