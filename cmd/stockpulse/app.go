package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"StockPulse/internal/collector"
	"StockPulse/internal/config"
	"StockPulse/internal/forecast"
	"StockPulse/internal/lock"
	"StockPulse/internal/metrics"
	"StockPulse/internal/pipeline"
	"StockPulse/internal/reconcile"
	"StockPulse/internal/recorder"
	"StockPulse/internal/store"
)

// app holds the wired components and the resources to release on exit.
type app struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	metrics  *metrics.Registry
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close resource")
		}
	}
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	switch cfg.DataSource.Provider {
	case "alpaca":
		return collector.NewAlpacaFetcher(cfg.DataSource.AlpacaKey, cfg.DataSource.AlpacaSecret)
	case "mock":
		return &collector.MockFetcher{Price: cfg.DataSource.MockPrice}
	default:
		return collector.NewYahooFetcher(cfg.Proxy, cfg.DataSource.Timeout)
	}
}

func newLoader(cfg *config.Config) forecast.Loader {
	if cfg.Model.Backend == "serving" {
		return forecast.NewServingLoader(cfg.Model.ServingURL, cfg.Model.Timeout)
	}
	return forecast.NewFileLoader(cfg.Paths.ModelDir, cfg.Model.TimeStep)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	start, err := cfg.StartTime()
	if err != nil {
		return nil, err
	}
	overlap, err := reconcile.ParseOverlapPolicy(cfg.Reconcile.Overlap)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.New()}

	fetcher := newFetcher(cfg)
	log.Info().Str("source", fetcher.Name()).Msg("data source selected")
	col := collector.NewCollector(fetcher, collector.Options{
		Timeout:          cfg.DataSource.Timeout,
		RatePerSecond:    cfg.DataSource.RatePerSecond,
		Burst:            cfg.DataSource.Burst,
		FailureThreshold: cfg.DataSource.FailureThreshold,
		CooldownPeriod:   cfg.DataSource.Cooldown,
		OnResult:         a.metrics.ObserveFetch,
	})

	var locker lock.Locker = lock.NewLocal()
	if cfg.Lock.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Lock.RedisAddr, err)
		}
		a.closers = append(a.closers, client.Close)
		locker = lock.NewRedis(client, cfg.Lock.TTL)
		log.Info().Str("addr", cfg.Lock.RedisAddr).Msg("using redis ticker lock")
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			rec = sr
			a.closers = append(a.closers, sr.Close)
		}
	}

	a.pipeline = pipeline.New(pipeline.Config{
		StartDate: start,
		TimeStep:  cfg.Model.TimeStep,
		Days:      cfg.Model.Days,
		Feature:   cfg.Model.Feature,
		Overlap:   overlap,
		Missing:   collector.MissingColumnPolicy(cfg.Reconcile.MissingColumns),
	}, pipeline.Deps{
		Store: store.New(store.Paths{
			HistoricalDir: cfg.Paths.HistoricalDir,
			DataDir:       cfg.Paths.DataDir,
			CombineDir:    cfg.Paths.CombineDir,
		}),
		Source:   col,
		Loader:   newLoader(cfg),
		Locker:   locker,
		Recorder: rec,
		Metrics:  a.metrics,
	})
	return a, nil
}
