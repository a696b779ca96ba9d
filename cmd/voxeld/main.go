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

	"github.com/voxelnet/server/internal/config"
	"github.com/voxelnet/server/internal/injector"
	"github.com/voxelnet/server/internal/logging"
	gonet "github.com/voxelnet/server/internal/net"
	"github.com/voxelnet/server/internal/permission"
	"github.com/voxelnet/server/internal/persist"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgFlag := flag.String("config", "config/server.toml", "config file path")
	hashSecret := flag.String("hash-secret", "", "print the bcrypt hash of a secret for permission.elevation_hash and exit")
	flag.Parse()

	if *hashSecret != "" {
		h, err := permission.HashSecret(*hashSecret)
		if err != nil {
			return err
		}
		fmt.Println(h)
		return nil
	}

	// 1. Load config
	cfgPath := config.Path(*cfgFlag)
	cfg, err := config.Load(cfgPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Connect to PostgreSQL and run migrations
	var repo *persist.SnapshotRepo
	if cfg.Database.Enabled {
		printSection("資料庫")
		dbCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		db, err := persist.NewDB(dbCtx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")

		if err := db.Migrate(dbCtx); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("資料庫遷移完成")
		fmt.Println()
		repo = persist.NewSnapshotRepo(db)
	}

	// 4. Build the server
	srv, err := injector.InitializeServer(cfg, log, repo)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	// 5. Load the world
	printSection("世界")
	n, err := srv.Boot(ctx)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	printStat("實體", n)
	printStat("指令碼", boolToInt(srv.Scripts != nil))
	fmt.Println()

	// 6. Open the listener
	ln, err := gonet.Listen(cfg.Network.Transport, cfg.Network.BindAddress, srv.Hub, cfg.Network.MaxFrameSize, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("%s 監聽 %s", cfg.Network.Transport, ln.Addr()))
	printReady(fmt.Sprintf("tick %s", cfg.Network.TickRate))
	fmt.Println()

	// 7. Accept loop and tick loop until a signal arrives
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ln.Serve(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	err = g.Wait()
	log.Info("收到關閉信號", zap.Error(ctx.Err()))
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
