package system

import (
	"time"

	coresys "github.com/voxelnet/server/internal/core/system"
	"github.com/voxelnet/server/internal/net/packet"
	"github.com/voxelnet/server/internal/replication"
	"github.com/voxelnet/server/internal/rpc"
	"go.uber.org/zap"
)

// Broadcaster sends one message to every connected peer.
type Broadcaster interface {
	Broadcast(data []byte)
}

// Flusher pushes buffered output to the transport.
type Flusher interface {
	Flush()
}

// ReplicationSystem drains the producer and broadcasts the delta on the
// sync channel. Registered before RPCFlushSystem so a peer sees a spawn
// before the response naming its id. Phase 4 (Output).
type ReplicationSystem struct {
	producer *replication.Producer
	out      Broadcaster
	sent     uint64
	log      *zap.Logger
}

func NewReplicationSystem(producer *replication.Producer, out Broadcaster, log *zap.Logger) *ReplicationSystem {
	return &ReplicationSystem{producer: producer, out: out, log: log}
}

func (s *ReplicationSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *ReplicationSystem) Update(_ time.Duration) {
	d, ok := s.producer.Drain()
	if !ok {
		return
	}
	payload := d.Encode()
	s.out.Broadcast(packet.EncodeEnvelope(packet.ChannelSync, payload))
	s.sent++
	if d.Full {
		s.log.Info("完整同步已送出",
			zap.Int("entities", len(d.Spawns)),
			zap.Int("bytes", len(payload)),
		)
	}
}

// Sent returns the number of deltas broadcast so far.
func (s *ReplicationSystem) Sent() uint64 { return s.sent }

// RPCFlushSystem sends the RPC records queued this tick. Phase 4 (Output).
type RPCFlushSystem struct {
	channel *rpc.Channel
	out     rpc.Sender
}

func NewRPCFlushSystem(channel *rpc.Channel, out rpc.Sender) *RPCFlushSystem {
	return &RPCFlushSystem{channel: channel, out: out}
}

func (s *RPCFlushSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *RPCFlushSystem) Update(_ time.Duration) {
	s.channel.Flush(s.out)
}

// OutputSystem hands every session's buffered messages to its writer.
// Registered last in Phase 4 (Output).
type OutputSystem struct {
	out Flusher
}

func NewOutputSystem(out Flusher) *OutputSystem {
	return &OutputSystem{out: out}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.out.Flush()
}
