// Loreserver serves campaign sessions over HTTP and WebSocket.
package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nathoo/lorecore/config"
	"github.com/nathoo/lorecore/engine"
	"github.com/nathoo/lorecore/engine/dice"
	"github.com/nathoo/lorecore/engine/state"
	"github.com/nathoo/lorecore/loader"
	"github.com/nathoo/lorecore/realtime"
	"github.com/nathoo/lorecore/server"
	"github.com/nathoo/lorecore/store"
	"github.com/nathoo/lorecore/store/memory"
	"github.com/nathoo/lorecore/store/sqlite"
)

const shutdownTimeout = 10 * time.Second

// seedingStore is a store that can load campaign definitions.
type seedingStore interface {
	store.Store
	SeedCampaign(ctx context.Context, defs *state.Defs) error
}

func main() {
	if err := run(); err != nil {
		slog.Error("loreserver stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})))
	if cfg.Level() > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.CampaignDir != "" {
		defs, warnings, err := loader.Load(cfg.CampaignDir)
		if err != nil {
			return fmt.Errorf("load campaign: %w", err)
		}
		for _, w := range warnings {
			slog.WarnContext(ctx, "campaign warning", "campaign", defs.Campaign.ID, "warning", w)
		}
		if err := st.SeedCampaign(ctx, defs); err != nil {
			return fmt.Errorf("seed campaign %s: %w", defs.Campaign.ID, err)
		}
		slog.InfoContext(ctx, "campaign seeded", "campaign", defs.Campaign.ID, "nodes", len(defs.Nodes), "triggers", len(defs.Triggers))
	}

	broker, err := openBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer broker.Close()

	retrying := store.NewRetrying(st, cfg.LogRetries)
	sync := realtime.NewSynchronizer(retrying, broker)
	seed, err := rngSeed(cfg.RNGSeed)
	if err != nil {
		return err
	}
	eng := engine.New(retrying, sync, dice.NewRNG(seed))
	slog.InfoContext(ctx, "engine ready", "rng_seed", seed)

	go sweepPresence(ctx, sync, cfg.PresenceTTL)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(eng),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(cfg config.Config) (seedingStore, func(), error) {
	if cfg.DBPath == "" {
		slog.Info("using in-memory store")
		return memory.New(), func() {}, nil
	}
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite %s: %w", cfg.DBPath, err)
	}
	slog.Info("using sqlite store", "path", cfg.DBPath)
	return st, func() {
		if err := st.Close(); err != nil {
			slog.Warn("close sqlite", "error", err)
		}
	}, nil
}

func openBroker(ctx context.Context, cfg config.Config) (realtime.Broker, error) {
	if cfg.RedisAddr == "" {
		return realtime.NewMemoryBroker(), nil
	}
	b, err := realtime.DialRedis(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("dial redis %s: %w", cfg.RedisAddr, err)
	}
	slog.InfoContext(ctx, "using redis broker", "addr", cfg.RedisAddr)
	return b, nil
}

// rngSeed returns configured, or a random seed when configured is zero.
func rngSeed(configured int64) (int64, error) {
	if configured != 0 {
		return configured, nil
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("seed rng: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func sweepPresence(ctx context.Context, sync *realtime.Synchronizer, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sync.Sweep(ctx, ttl)
		}
	}
}
