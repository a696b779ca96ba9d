package event

import "github.com/voxelnet/server/internal/core/ecs"

type PeerConnected struct {
	Peer uint64
}

type PeerDisconnected struct {
	Peer uint64
}

// EntitySpawned is emitted for entities created through an RPC or a script.
type EntitySpawned struct {
	ID     ecs.NetworkID
	Name   string
	Parent ecs.NetworkID
	Peer   uint64 // 0 = local
}

type EntityDestroyed struct {
	ID   ecs.NetworkID
	Peer uint64
}

// ResyncRequested is emitted on the authority when a peer asks for a full
// snapshot, and on an observer when it detects topology divergence.
type ResyncRequested struct {
	Peer   uint64
	Reason string
}

type PeerElevated struct {
	Peer uint64
}
