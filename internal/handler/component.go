package handler

import (
	"github.com/voxelnet/server/internal/net/packet"
	"github.com/voxelnet/server/internal/rpc"
	"go.uber.org/zap"
)

// HandleAddComponent attaches a component and echoes its state.
func HandleAddComponent(peer uint64, m *rpc.AddComponent, deps *Deps) *rpc.AddComponentResponse {
	resp := &rpc.AddComponentResponse{ID: m.ID, Type: m.Type}
	c, err := deps.World.AddComponent(m.ID, m.Type, m.Payload)
	if err != nil {
		deps.Log.Debug("加入元件失敗",
			zap.Uint64("peer", peer),
			zap.String("type", m.Type),
			zap.Error(err),
		)
		return resp
	}
	w := packet.NewWriter()
	c.Serialize(w)
	resp.Payload = w.Bytes()
	resp.OK = true
	return resp
}

func HandleRemoveComponent(peer uint64, m *rpc.RemoveComponent, deps *Deps) *rpc.RemoveComponentResponse {
	resp := &rpc.RemoveComponentResponse{ID: m.ID, Type: m.Type}
	if err := deps.World.RemoveComponent(m.ID, m.Type); err != nil {
		deps.Log.Debug("移除元件失敗",
			zap.Uint64("peer", peer),
			zap.String("type", m.Type),
			zap.Error(err),
		)
		return resp
	}
	resp.OK = true
	return resp
}
