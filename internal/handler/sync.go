package handler

import (
	"github.com/voxelnet/server/internal/core/event"
	"go.uber.org/zap"
)

// HandleRequestFullSync queues a full snapshot for the next replication
// drain.
func HandleRequestFullSync(peer uint64, deps *Deps) {
	deps.Log.Info("對端請求完整同步", zap.Uint64("peer", peer))
	deps.Producer.Reload()
	event.Emit(deps.Bus, event.ResyncRequested{Peer: peer, Reason: "peer request"})
}
