package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/voxelnet/server/internal/config"
	"github.com/voxelnet/server/internal/core/ecs"
	"github.com/voxelnet/server/internal/core/event"
	coresys "github.com/voxelnet/server/internal/core/system"
	"github.com/voxelnet/server/internal/core/task"
	"github.com/voxelnet/server/internal/data"
	"github.com/voxelnet/server/internal/handler"
	"github.com/voxelnet/server/internal/net"
	"github.com/voxelnet/server/internal/net/packet"
	"github.com/voxelnet/server/internal/permission"
	"github.com/voxelnet/server/internal/persist"
	"github.com/voxelnet/server/internal/replication"
	"github.com/voxelnet/server/internal/rpc"
	"github.com/voxelnet/server/internal/scripting"
	"github.com/voxelnet/server/internal/system"
	"github.com/voxelnet/server/internal/world"
	"go.uber.org/zap"
)

// shutdownSaveTimeout bounds the final snapshot write.
const shutdownSaveTimeout = 10 * time.Second

// Server is the authority: it owns the world, replicates it to every
// connected peer and serves their RPC requests.
type Server struct {
	cfg *config.Config

	Store    *ecs.Store
	World    *world.State
	Producer *replication.Producer
	Channel  *rpc.Channel
	Perms    *permission.Manager
	Bus      *event.Bus
	Tasks    *task.Queue
	Hub      *net.Hub
	Scripts  *scripting.Engine // nil when scripting is disabled
	Runner   *coresys.Runner

	repo        *persist.SnapshotRepo
	persistence *system.PersistenceSystem

	log *zap.Logger
}

// NewServer wires handlers, channels, hooks and tick systems together.
// scripts and repo may be nil.
func NewServer(
	cfg *config.Config,
	ws *world.State,
	producer *replication.Producer,
	bus *event.Bus,
	tasks *task.Queue,
	hub *net.Hub,
	packets *packet.Registry,
	rpcReg *rpc.Registry,
	channel *rpc.Channel,
	perms *permission.Manager,
	scripts *scripting.Engine,
	repo *persist.SnapshotRepo,
	log *zap.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		Store:    ws.Store,
		World:    ws,
		Producer: producer,
		Channel:  channel,
		Perms:    perms,
		Bus:      bus,
		Tasks:    tasks,
		Hub:      hub,
		Scripts:  scripts,
		Runner:   coresys.NewRunner(),
		repo:     repo,
		log:      log,
	}

	handler.RegisterAll(rpcReg, &handler.Deps{
		World:    ws,
		RPC:      channel,
		Producer: producer,
		Perms:    perms,
		Bus:      bus,
		Log:      log,
	})
	packets.Register(packet.ChannelRPC, channel.Receive)

	hub.OnPeerConnected(s.onPeerConnected)
	hub.OnPeerDisconnected(s.onPeerDisconnected)
	s.subscribe()

	s.Runner.Register(system.NewInputSystem(hub, packets, tasks, cfg.Network.MaxPacketsPerTick, log))
	s.Runner.Register(system.NewEventDispatchSystem(bus))
	var ticker system.Ticker
	if scripts != nil {
		ticker = scripts
	}
	s.Runner.Register(system.NewUpdateSystem(ws.Store, ticker))
	s.Runner.Register(system.NewRenderSystem(ws.Store))
	s.Runner.Register(system.NewReplicationSystem(producer, hub, log))
	s.Runner.Register(system.NewRPCFlushSystem(channel, hub))
	s.Runner.Register(system.NewOutputSystem(hub))
	if repo != nil {
		ticks := int(cfg.Database.SnapshotInterval / cfg.Network.TickRate)
		s.persistence = system.NewPersistenceSystem(ws, repo, log, ticks)
		s.Runner.Register(s.persistence)
	}
	s.Runner.Register(system.NewCleanupSystem(ws.Store))
	return s
}

func (s *Server) subscribe() {
	event.Subscribe(s.Bus, func(ev event.ResyncRequested) {
		s.log.Debug("完整同步請求", zap.Uint64("peer", ev.Peer), zap.String("reason", ev.Reason))
	})
	if s.Scripts == nil {
		return
	}
	event.Subscribe(s.Bus, func(ev event.EntitySpawned) {
		s.Scripts.EntitySpawned(ev.ID, ev.Name, ev.Peer)
	})
	event.Subscribe(s.Bus, func(ev event.PeerConnected) {
		s.Scripts.PeerConnected(ev.Peer)
	})
	event.Subscribe(s.Bus, func(ev event.PeerDisconnected) {
		s.Scripts.PeerDisconnected(ev.Peer)
	})
}

// onPeerConnected applies default grants and queues a full snapshot so the
// new peer starts from the whole world.
func (s *Server) onPeerConnected(peer net.PeerID) {
	s.Perms.Connect(peer)
	s.Producer.Reload()
	event.Emit(s.Bus, event.PeerConnected{Peer: peer})
}

func (s *Server) onPeerDisconnected(peer net.PeerID) {
	if n := s.Channel.FailPeer(peer); n > 0 {
		s.log.Debug("斷線對端的呼叫已失敗", zap.Uint64("peer", peer), zap.Int("calls", n))
	}
	s.Perms.Drop(peer)
	event.Emit(s.Bus, event.PeerDisconnected{Peer: peer})
}

// Boot populates the world from the latest snapshot, or from the seed file
// when there is none, and runs the script initialization hooks around it.
// Returns the number of entities loaded.
func (s *Server) Boot(ctx context.Context) (int, error) {
	if s.Scripts != nil {
		s.Scripts.PreInitialize()
	}

	n, restored, err := s.restore(ctx)
	if err != nil {
		return 0, err
	}
	if !restored {
		if n, err = s.seed(); err != nil {
			return 0, err
		}
	}

	if s.Scripts != nil {
		s.Scripts.Initialize()
	}
	return n, nil
}

func (s *Server) restore(ctx context.Context) (int, bool, error) {
	if s.repo == nil {
		return 0, false, nil
	}
	snap, err := s.repo.Load(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("load snapshot: %w", err)
	}
	if len(snap.Entities) == 0 {
		return 0, false, nil
	}
	n, err := s.World.Import(snap)
	if err != nil {
		return 0, false, fmt.Errorf("restore snapshot: %w", err)
	}
	return n, true, nil
}

func (s *Server) seed() (int, error) {
	path := s.cfg.World.SeedFile
	if path == "" {
		return 0, nil
	}
	seed, err := data.LoadWorldSeed(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("世界種子檔不存在", zap.String("path", path))
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return s.World.Seed(seed)
}

// Tick runs one full tick.
func (s *Server) Tick() {
	s.Runner.Tick(s.cfg.Network.TickRate)
}

// Run ticks until ctx is cancelled, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Network.TickRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Tick()
		case <-ctx.Done():
			return s.Shutdown()
		}
	}
}

// Shutdown runs the uninitialize hook, saves a final snapshot and closes
// every session.
func (s *Server) Shutdown() error {
	if s.Scripts != nil {
		s.Scripts.Uninitialize()
	}
	var saveErr error
	if s.persistence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownSaveTimeout)
		saveErr = s.persistence.SaveNow(ctx)
		cancel()
		if saveErr != nil {
			s.log.Error("關閉存檔失敗", zap.Error(saveErr))
		}
	}
	s.Hub.Close()
	if s.Scripts != nil {
		s.Scripts.Close()
	}
	s.log.Info("伺服器已停止", zap.Uint64("ticks", s.Runner.Ticks()))
	return saveErr
}
