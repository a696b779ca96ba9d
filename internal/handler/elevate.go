package handler

import (
	"github.com/voxelnet/server/internal/core/event"
	"github.com/voxelnet/server/internal/rpc"
	"go.uber.org/zap"
)

func HandleElevate(peer uint64, m *rpc.Elevate, deps *Deps) *rpc.ElevateResponse {
	ok, err := deps.Perms.Elevate(peer, m.Secret)
	if err != nil {
		deps.Log.Debug("提權失敗", zap.Uint64("peer", peer), zap.Error(err))
		return &rpc.ElevateResponse{}
	}
	if ok {
		event.Emit(deps.Bus, event.PeerElevated{Peer: peer})
	}
	return &rpc.ElevateResponse{OK: ok}
}
