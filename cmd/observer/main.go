package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/voxelnet/server/internal/app"
	"github.com/voxelnet/server/internal/config"
	"github.com/voxelnet/server/internal/injector"
	"github.com/voxelnet/server/internal/logging"
	gonet "github.com/voxelnet/server/internal/net"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// statusInterval is how often the observer logs what it mirrors.
const statusInterval = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgFlag := flag.String("config", "config/server.toml", "config file path")
	addr := flag.String("addr", "", "server address (overrides network.connect_address)")
	create := flag.String("create", "", "entity name to create once connected (overrides observer.create_entity)")
	flag.Parse()

	// 1. Load config
	cfg, err := config.Load(config.Path(*cfgFlag))
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Network.ConnectAddress = *addr
	}
	if *create != "" {
		cfg.Observer.CreateEntity = *create
	}

	// 2. Init logger
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Build the observer and dial the server
	obs, err := injector.InitializeObserver(cfg, log)
	if err != nil {
		return fmt.Errorf("init observer: %w", err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := gonet.Dial(dialCtx, cfg.Network.Transport, cfg.Network.ConnectAddress, cfg.Network.MaxFrameSize)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Network.ConnectAddress, err)
	}
	if err := obs.Connect(conn); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	// 4. Tick loop plus periodic status until a signal or the server leaves
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return obs.Run(gctx) })
	g.Go(func() error {
		status(gctx, obs, log)
		return nil
	})

	err = g.Wait()
	if errors.Is(err, app.ErrServerLost) {
		log.Warn("伺服器已關閉連線")
		return nil
	}
	return err
}

// status logs the mirrored world size until ctx is done. It only reads
// through the task queue so the store stays on the tick goroutine.
func status(ctx context.Context, obs *app.Observer, log *zap.Logger) {
	t := time.NewTicker(statusInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-obs.Lost():
			return
		case <-t.C:
			obs.Tasks.Enqueue(func() {
				log.Info("同步狀態",
					zap.Int("entities", obs.Store.Len()),
					zap.Uint64("deltas", obs.Consumer.Applied()),
					zap.Int("resyncs", obs.Consumer.Resyncs()),
				)
			})
		}
	}
}
