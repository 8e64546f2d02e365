package main

import (
	"context"
	"log/slog"
	"reflect"

	"qrgate/internal/config"
	"qrgate/internal/logging"
	"qrgate/internal/registry"
)

// liveConfig applies the settings that can change without a restart: the log
// level and the plate registry file. Everything else is reported as pending.
type liveConfig struct {
	ctx     context.Context
	logger  *slog.Logger
	level   *slog.LevelVar
	pinned  bool
	plates  *registry.Registry
	source  *registry.SwitchSource
	current *config.Config
	reg     config.RegistryConfig

	stopWatch context.CancelFunc
}

func newLiveConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger, level *slog.LevelVar, plates *registry.Registry, source *registry.SwitchSource) *liveConfig {
	l := &liveConfig{
		ctx:     ctx,
		logger:  logger,
		level:   level,
		pinned:  logLevel != "",
		plates:  plates,
		source:  source,
		current: cfg,
		reg:     cfg.Registry,
	}
	l.watchRegistry(cfg.Registry)
	return l
}

func (l *liveConfig) watchRegistry(cfg config.RegistryConfig) {
	if l.stopWatch != nil {
		l.stopWatch()
		l.stopWatch = nil
	}
	if cfg.Source != config.RegistrySourceFile || cfg.WatchInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(l.ctx)
	l.stopWatch = cancel
	go l.plates.Watch(ctx, cfg.Path, cfg.WatchInterval, l.logger)
}

func (l *liveConfig) apply(next *config.Config) {
	prev := l.current
	l.current = next

	if !l.pinned && next.LogLevel != prev.LogLevel {
		l.level.Set(logging.ParseLevel(next.LogLevel))
		l.logger.Info("log level changed", "level", next.LogLevel)
	}

	switch {
	case next.Registry.Source != l.reg.Source:
		l.logger.Warn("registry.source change requires restart", "running", l.reg.Source)
		l.reloadPlates()
	case next.Registry.Source == config.RegistrySourceFile && next.Registry != l.reg:
		l.reg = next.Registry
		l.source.Set(registry.FileSource{Path: next.Registry.Path})
		l.watchRegistry(next.Registry)
		l.reloadPlates()
	default:
		l.reloadPlates()
	}

	if pending := restartOnly(prev, next); len(pending) > 0 {
		l.logger.Warn("config changes need a restart to apply", "sections", pending)
	}
}

func (l *liveConfig) reloadPlates() {
	if err := l.plates.Reload(l.ctx, l.source); err != nil {
		l.logger.Warn("plate registry reload failed", "err", err)
		return
	}
	l.logger.Info("plate registry reloaded", "plates", l.plates.Len())
}

func restartOnly(prev, next *config.Config) []string {
	sections := []struct {
		name string
		a, b any
	}{
		{"barrier", prev.Barrier, next.Barrier},
		{"token", prev.Token, next.Token},
		{"actuator", prev.Actuator, next.Actuator},
		{"camera", prev.Camera, next.Camera},
		{"ingest", prev.Ingest, next.Ingest},
		{"publish", prev.Publish, next.Publish},
		{"api", prev.API, next.API},
		{"storage", prev.Storage, next.Storage},
		{"events", prev.Events, next.Events},
	}
	var out []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.a, s.b) {
			out = append(out, s.name)
		}
	}
	return out
}
