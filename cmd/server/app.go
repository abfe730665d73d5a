package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/warp/violation-sync/api"
	"github.com/warp/violation-sync/config"
	"github.com/warp/violation-sync/enrichment"
	"github.com/warp/violation-sync/lock"
	"github.com/warp/violation-sync/logging"
	"github.com/warp/violation-sync/metrics"
	"github.com/warp/violation-sync/source"
	"github.com/warp/violation-sync/store/sqlite"
	"github.com/warp/violation-sync/violations"
)

// app is the dependency graph shared by every command.
type app struct {
	cfg        config.Config
	store      *sqlite.Store
	engine     *violations.Engine
	dispatcher *violations.Dispatcher
	drainer    *violations.Drainer
	runner     *api.SweepRunner
	registry   *prometheus.Registry

	redis     *redis.Client
	logCloser io.Closer
}

func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.Viper, opts.ConfigFile)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	a.logCloser = logging.Setup(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	// Metrics
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.New(a.registry)

	// Store
	a.store, err = sqlite.New(cfg.DB)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// External source
	src, err := source.New(source.Config{
		BaseURL:  cfg.Source.URL,
		AppToken: cfg.Source.Token,
		Timeout:  cfg.Source.Timeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	// Enrichment worker
	var worker violations.EnrichmentWorker
	if cfg.Enrichment.URL != "" {
		client, err := enrichment.New(enrichment.Config{
			URL:     cfg.Enrichment.URL,
			APIKey:  cfg.Enrichment.APIKey,
			Timeout: cfg.Enrichment.Timeout,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		worker = client
	} else {
		log.Println("[Dispatch] No enrichment.url configured, dispatch disabled")
	}
	a.dispatcher = violations.NewDispatcher(worker, recorder)

	// Sweep guard
	var guard violations.RunGuard = lock.NewLocal()
	if cfg.Redis.URL != "" {
		a.redis, err = lock.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		guard = lock.NewRedis(a.redis, lock.WithTTL(cfg.Redis.TTL))
	}

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = violations.NewEngine(a.store, src, a.store, a.dispatcher, guard, engineCfg)
	a.engine.Recorder = recorder

	floor, err := cfg.FloorDate()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.drainer = violations.NewDrainer(a.store, a.dispatcher, floor)
	a.drainer.Recorder = recorder

	a.runner = api.NewSweepRunner(a.engine, a.store)
	return a, nil
}

// Close waits for in-flight dispatches, then releases resources.
func (a *app) Close() {
	a.dispatcher.Wait()
	if a.store != nil {
		a.store.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
