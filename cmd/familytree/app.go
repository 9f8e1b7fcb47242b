package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/scrypster/familytree/internal/config"
	"github.com/scrypster/familytree/internal/engine"
	"github.com/scrypster/familytree/internal/storage"
	"github.com/scrypster/familytree/internal/storage/postgres"
	"github.com/scrypster/familytree/internal/storage/sqlite"
	"github.com/scrypster/familytree/pkg/types"
)

// backend is a concrete SQL store: the engine's view plus member writes and
// schema migrations.
type backend interface {
	storage.Store
	storage.MemberWriter
	Migrate(ctx context.Context) (int, error)
}

// app bundles the wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	backend backend
	store   *storage.BreakerStore
	engine  *engine.Engine
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (backend, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewStore(ctx, cfg.Storage.PostgresDSN, true, logger)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return sqlite.NewStore(cfg.SQLitePath(), sqlite.WithLogger(logger))
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	store := storage.WithCircuitBreaker(be, storage.BreakerConfig{
		MaxFailures: uint32(cfg.Breaker.MaxFailures),
		Timeout:     cfg.Breaker.Timeout,
	}, logger)

	engCfg := engine.DefaultConfig()
	engCfg.MetadataMode = engine.MetadataMode(cfg.Engine.MetadataSupport)
	engCfg.MaxAncestorDepth = cfg.Engine.MaxAncestorDepth
	engCfg.Logger = logger

	eng, err := engine.New(store, engCfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize relationship engine: %w", err)
	}

	return &app{cfg: cfg, logger: logger, backend: be, store: store, engine: eng}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// summaryName renders a member summary, falling back to the id when the
// member is missing from the directory.
func summaryName(s *types.MemberSummary, id string) string {
	if s == nil {
		return id
	}
	if name := strings.TrimSpace(s.FirstName + " " + s.LastName); name != "" {
		return name
	}
	return id
}
