package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"qrgate/internal/config"
	"qrgate/internal/logging"
	"qrgate/internal/registry"
	"qrgate/internal/storage"
)

// loadConfig reads --config, or falls back to defaults when no path is given.
func loadConfig() (*config.Manager, error) {
	if configPath == "" {
		return config.NewStaticManager(config.DefaultConfig()), nil
	}
	m, err := config.NewManager(config.ResolvePath(configPath))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return m, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, *slog.LevelVar) {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logging.NewLeveledLogger(os.Stdout, level)
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Store, error) {
	store, err := storage.NewStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if store == nil {
		return nil, nil
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	return store, nil
}

func registrySource(cfg *config.Config, store storage.Store) (registry.Source, error) {
	switch cfg.Registry.Source {
	case config.RegistrySourceStorage:
		if store == nil {
			return nil, fmt.Errorf("registry source storage needs storage enabled")
		}
		return store, nil
	default:
		return registry.FileSource{Path: cfg.Registry.Path}, nil
	}
}
