package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/tictaccode/arena/internal/codeforces"
	"github.com/tictaccode/arena/internal/config"
	"github.com/tictaccode/arena/internal/database"
	"github.com/tictaccode/arena/internal/game"
	"github.com/tictaccode/arena/internal/handler/health"
	"github.com/tictaccode/arena/internal/migrations"
	"github.com/tictaccode/arena/internal/server"
	"github.com/tictaccode/arena/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- Room store ---
	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// --- Codeforces ---
	cf := codeforces.New(codeforces.Config{
		BaseURL:      cfg.CFAPIBase,
		RateInterval: cfg.CFRateInterval,
		Timeout:      cfg.CFTimeout,
		CacheTTL:     cfg.SolvedCacheTTL,
	}, logger)

	svc := game.NewService(st, cf, cf, logger, game.Options{
		ResolveTimeout: cfg.ResolveTimeout,
		RoomTTL:        cfg.RoomTTL,
	})

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Service:        svc,
		Checks:         map[string]health.Checker{"store": health.CheckerFunc(st.Ping)},
		AllowedOrigins: cfg.AllowedOrigins,
		SPADir:         cfg.SPADir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr, "store", cfg.Store)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		return svc.RunJanitor(gctx, cfg.JanitorInterval)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.Store {
	case config.StoreRedis:
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("connected to redis")
		return store.NewRedisStore(rdb, cfg.RoomTTL), func() { rdb.Close() }, nil

	case config.StoreMemory:
		logger.Warn("using in-memory room store; rooms are lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}

	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to sqlite: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)
	return store.NewSQLiteStore(db), func() { db.Close() }, nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
