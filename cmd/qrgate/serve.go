package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qrgate/internal/actuator"
	"qrgate/internal/api"
	"qrgate/internal/barrier"
	"qrgate/internal/config"
	"qrgate/internal/events"
	"qrgate/internal/ingest"
	"qrgate/internal/publish"
	"qrgate/internal/registry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the barrier controller",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	mgr, err := loadConfig()
	if err != nil {
		return err
	}
	cfg := mgr.Get()
	logger, level := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	initial, err := registrySource(cfg, store)
	if err != nil {
		return err
	}
	src := registry.NewSwitchSource(initial)
	plates, err := registry.Load(ctx, src)
	if err != nil {
		logger.Warn("plate registry unavailable, denying all", "err", err)
	}
	logger.Info("plate registry loaded", "source", cfg.Registry.Source, "plates", plates.Len())
	live := newLiveConfig(ctx, cfg, logger, level, plates, src)

	ctrl := barrier.NewController(plates, actuator.New(cfg.Actuator, logger), barrier.Options{
		OpenSeconds: cfg.Barrier.OpenSeconds,
		Tick:        cfg.Barrier.Tick,
		Freshness:   cfg.Token.FreshnessSeconds,
		Logger:      logger,
	})
	ctrlCtx, ctrlCancel := context.WithCancel(context.Background())
	defer ctrlCancel()
	ctrl.Start(ctrlCtx)

	eventStore := events.NewStore(cfg.Events.StoreLimit)
	counters := events.NewCounters()
	var sinks []events.Sink
	if store != nil {
		sinks = append(sinks, store)
	}
	if pub := publish.NewKafka(cfg.Publish.Kafka, logger); pub != nil {
		defer pub.Close()
		sinks = append(sinks, pub)
	}
	gate := ingest.NewGate(ctrl, events.NewRecorder(eventStore, counters, logger, sinks...), logger)

	ingest.StartCamera(ctx, cfg.Camera, gate, logger)
	ingest.StartREST(ctx, cfg.Ingest.REST, gate, logger)
	ingest.StartKafka(ctx, cfg.Ingest.Kafka, gate, logger)
	ingest.StartFileTail(ctx, cfg.Ingest.FileTail, gate, logger)
	api.Start(ctx, api.Deps{
		Config:   mgr,
		Gate:     gate,
		Events:   eventStore,
		Counters: counters,
		Registry: plates,
		Source:   src,
		Logger:   logger,
		Version:  version,
	})

	go mgr.Watch(5*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", mgr.Path())
		live.apply(next)
	}, func(err error) {
		logger.Warn("config watch error", "err", err)
	}, ctx.Done())

	<-ctx.Done()
	logger.Info("shutting down")

	// Let a running cycle finish so the barrier is not left commanded open.
	bound := time.Duration(cfg.Barrier.OpenSeconds)*cfg.Barrier.Tick + cfg.Actuator.Timeout
	waitOrTimeout(ctrl.Wait, bound)
	ctrlCancel()
	select {
	case <-ctrl.Done():
	case <-time.After(cfg.Actuator.Timeout + time.Second):
	}
	return nil
}

func waitOrTimeout(wait func(), d time.Duration) {
	done := make(chan struct{})
	go func() {
		wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}
