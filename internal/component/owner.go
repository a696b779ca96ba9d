package component

import (
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/net/packet"
)

const TypeOwner = "Owner"

// Owner links an entity to the peer whose request created it.
// Zero means the server itself.
type Owner struct {
	ecs.DirtyFlag

	Peer uint64
}

func (o *Owner) TypeName() string { return TypeOwner }

func (o *Owner) Serialize(w *packet.Writer) {
	w.WriteU64(o.Peer)
}

func (o *Owner) Deserialize(r *packet.Reader) error {
	peer := r.ReadU64()
	if err := r.Err(); err != nil {
		return err
	}
	o.Peer = peer
	return nil
}
