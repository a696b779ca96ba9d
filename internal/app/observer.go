package app

import (
	"context"
	"errors"
	"time"

	"github.com/voxelnet/server/internal/component"
	"github.com/voxelnet/server/internal/config"
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/core/event"
	coresys "github.com/voxelnet/server/internal/core/system"
	"github.com/voxelnet/server/internal/core/task"
	"github.com/voxelnet/server/internal/handler"
	"github.com/voxelnet/server/internal/net"
	"github.com/voxelnet/server/internal/net/packet"
	"github.com/voxelnet/server/internal/replication"
	"github.com/voxelnet/server/internal/rpc"
	"github.com/voxelnet/server/internal/system"
	"github.com/voxelnet/server/internal/world"
	"go.uber.org/zap"
)

// ErrServerLost is returned by Observer.Run when the authority hangs up.
var ErrServerLost = errors.New("connection to server lost")

// callTimeout bounds the startup calls an observer makes.
const callTimeout = 10 * time.Second

// Observer is a headless peer that mirrors the authority's world.
type Observer struct {
	cfg *config.Config

	Store    *ecs.Store
	World    *world.State
	Consumer *replication.Consumer
	Channel  *rpc.Channel
	Bus      *event.Bus
	Tasks    *task.Queue
	Hub      *net.Hub
	Runner   *coresys.Runner

	server net.PeerID // tick loop only; 0 until connected
	lost   chan struct{}

	// Created receives the result of the startup create-entity call.
	Created chan *rpc.CreateEntityResponse

	log *zap.Logger
}

func NewObserver(
	cfg *config.Config,
	ws *world.State,
	bus *event.Bus,
	tasks *task.Queue,
	hub *net.Hub,
	packets *packet.Registry,
	rpcReg *rpc.Registry,
	channel *rpc.Channel,
	log *zap.Logger,
) *Observer {
	o := &Observer{
		cfg:     cfg,
		Store:   ws.Store,
		World:   ws,
		Channel: channel,
		Bus:     bus,
		Tasks:   tasks,
		Hub:     hub,
		Runner:  coresys.NewRunner(),
		lost:    make(chan struct{}),
		Created: make(chan *rpc.CreateEntityResponse, 1),
		log:     log,
	}
	o.Consumer = replication.NewConsumer(ws.Store, ws.Registry, replication.ConsumerConfig{
		Defaults:       component.AttachDefaults,
		RequestResync:  o.requestResync,
		ResyncCooldown: cfg.Replication.ResyncCooldown,
	}, log)

	handler.RegisterObserver(rpcReg, ws, log)
	packets.Register(packet.ChannelSync, o.Consumer.Handle)
	packets.Register(packet.ChannelRPC, channel.Receive)

	hub.OnPeerConnected(o.onConnected)
	hub.OnPeerDisconnected(o.onDisconnected)
	event.Subscribe(bus, func(ev event.ResyncRequested) {
		o.log.Info("已請求完整同步", zap.Uint64("server", ev.Peer), zap.String("reason", ev.Reason))
	})

	o.Runner.Register(system.NewInputSystem(hub, packets, tasks, cfg.Network.MaxPacketsPerTick, log))
	o.Runner.Register(system.NewEventDispatchSystem(bus))
	o.Runner.Register(system.NewUpdateSystem(ws.Store, nil))
	o.Runner.Register(system.NewRenderSystem(ws.Store))
	o.Runner.Register(system.NewRPCFlushSystem(channel, hub))
	o.Runner.Register(system.NewOutputSystem(hub))
	o.Runner.Register(system.NewCleanupSystem(ws.Store))
	return o
}

// Connect attaches an established connection to the authority.
func (o *Observer) Connect(conn net.Conn) error {
	_, err := o.Hub.Attach(conn)
	return err
}

// Server returns the authority's peer id, or 0 before the connection is
// admitted.
func (o *Observer) Server() net.PeerID { return o.server }

// Lost is closed when the authority disconnects.
func (o *Observer) Lost() <-chan struct{} { return o.lost }

func (o *Observer) onConnected(peer net.PeerID) {
	if o.server != 0 {
		o.log.Warn("忽略額外連線", zap.Uint64("peer", peer))
		return
	}
	o.server = peer
	o.log.Info("已連線至伺服器", zap.Uint64("peer", peer))

	if secret := o.cfg.Observer.Secret; secret != "" {
		go o.awaitElevate(o.Channel.IssueCall(peer, &rpc.Elevate{Secret: secret}))
	}
	if name := o.cfg.Observer.CreateEntity; name != "" {
		h := o.Channel.IssueCall(peer, &rpc.CreateEntity{
			Name:   name,
			Parent: ecs.NetworkID(o.cfg.Observer.CreateParent),
		})
		go o.awaitCreate(h)
	}
}

func (o *Observer) awaitElevate(h *rpc.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	resp, err := rpc.Await[*rpc.ElevateResponse](ctx, h)
	if err != nil {
		o.log.Warn("提權失敗", zap.Error(err))
		return
	}
	o.log.Info("提權完成", zap.Bool("ok", resp.OK))
}

func (o *Observer) awaitCreate(h *rpc.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	resp, err := rpc.Await[*rpc.CreateEntityResponse](ctx, h)
	if err != nil {
		o.log.Warn("建立實體失敗", zap.Uint64("call", h.CallID()), zap.Error(err))
		close(o.Created)
		return
	}
	o.log.Info("實體已建立",
		zap.Uint32("id", uint32(resp.ID)),
		zap.String("name", resp.Name),
		zap.Uint32("parent", uint32(resp.Parent)),
	)
	o.Created <- resp
}

func (o *Observer) onDisconnected(peer net.PeerID) {
	o.Channel.FailPeer(peer)
	if peer != o.server {
		return
	}
	o.log.Warn("與伺服器斷線", zap.Uint64("peer", peer))
	o.server = 0
	close(o.lost)
}

// requestResync asks the authority for a full snapshot after the consumer
// found its tree diverged from the shadow.
func (o *Observer) requestResync() {
	if o.server == 0 {
		return
	}
	o.Channel.IssueCall(o.server, &rpc.RequestFullSync{})
	event.Emit(o.Bus, event.ResyncRequested{Peer: o.server, Reason: "topology divergence"})
}

// Tick runs one full tick.
func (o *Observer) Tick() {
	o.Runner.Tick(o.cfg.Network.TickRate)
}

// Run ticks until ctx is cancelled or the authority disconnects.
func (o *Observer) Run(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.Network.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.Tick()
		case <-o.lost:
			o.Hub.Close()
			return ErrServerLost
		case <-ctx.Done():
			o.Hub.Close()
			return nil
		}
	}
}
