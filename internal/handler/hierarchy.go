package handler

import (
	"github.com/voxelnet/server/internal/rpc"
	"go.uber.org/zap"
)

func HandleAddChild(peer uint64, m *rpc.AddChild, deps *Deps) *rpc.AddChildResponse {
	resp := &rpc.AddChildResponse{Parent: m.Parent, Child: m.Child}
	if err := deps.World.Store.AddChild(m.Parent, m.Child); err != nil {
		deps.Log.Debug("加入子實體失敗", zap.Uint64("peer", peer), zap.Error(err))
		return resp
	}
	resp.OK = true
	return resp
}

func HandleRemoveChild(peer uint64, m *rpc.RemoveChild, deps *Deps) {
	if err := deps.World.Store.RemoveChild(m.Parent, m.Child); err != nil {
		deps.Log.Debug("移除子實體失敗", zap.Uint64("peer", peer), zap.Error(err))
	}
}
