package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/ilearnhow/lessongen/pkg/audit"
	"github.com/ilearnhow/lessongen/pkg/budget"
	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/cache/badger"
	"github.com/ilearnhow/lessongen/pkg/cache/memory"
	"github.com/ilearnhow/lessongen/pkg/cache/redis"
	"github.com/ilearnhow/lessongen/pkg/cache/sqlite"
	"github.com/ilearnhow/lessongen/pkg/clock"
	"github.com/ilearnhow/lessongen/pkg/config"
	"github.com/ilearnhow/lessongen/pkg/curriculum"
	"github.com/ilearnhow/lessongen/pkg/metrics"
	"github.com/ilearnhow/lessongen/pkg/orchestrator"
	"github.com/ilearnhow/lessongen/pkg/provider"
	"github.com/ilearnhow/lessongen/pkg/ratelimit"
	"github.com/ilearnhow/lessongen/pkg/router"
	"github.com/ilearnhow/lessongen/pkg/tracker"
)

// runtime holds every component built from one config.
type runtime struct {
	cfg      *config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector
	store    *cache.Store
	tracker  *tracker.SQLiteTracker
	budget   *budget.Enforcer
	limiter  *ratelimit.Limiter
	client   *provider.Client
	catalog  *curriculum.Catalog
	ledger   *audit.Ledger
	orch     *orchestrator.Orchestrator

	closers []func() error
}

func openTiers(ctx context.Context, cfg config.CacheConfig, clk clock.Clock) (cache.Tier, cache.Tier, error) {
	var volatile cache.Tier
	switch cfg.Volatile.Backend {
	case "redis":
		t, err := redis.New(ctx, redis.Options{Addr: cfg.Volatile.Addr, Password: cfg.Volatile.Password, DB: cfg.Volatile.DB})
		if err != nil {
			return nil, nil, err
		}
		volatile = t
	default:
		volatile = memory.New(clk)
	}

	var durable cache.Tier
	var err error
	switch cfg.Durable.Backend {
	case "badger":
		durable, err = badger.Open(cfg.Durable.Path)
	default:
		durable, err = sqlite.New(cfg.Durable.Path, clk)
	}
	if err != nil {
		_ = volatile.Close()
		return nil, nil, err
	}
	return volatile, durable, nil
}

// openRuntime wires the generation stack. The caller must call Close.
func openRuntime(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*runtime, error) {
	clk := clock.Real{}
	rt := &runtime{cfg: cfg, log: log, registry: prometheus.NewRegistry()}
	rt.metrics = metrics.NewWithRegistry(rt.registry)

	volatile, durable, err := openTiers(ctx, cfg.Cache, clk)
	if err != nil {
		return nil, fmt.Errorf("init cache: %w", err)
	}
	rt.store = cache.NewStore(volatile, durable, cfg.Cache.WarmTTL, log)
	rt.closers = append(rt.closers, rt.store.Close)

	rt.tracker, err = tracker.New(cfg.DBPath)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init tracker: %w", err)
	}
	rt.closers = append(rt.closers, rt.tracker.Close)

	rt.ledger, err = audit.New(cfg.DBPath, cfg.Audit.RetentionDays, clk)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init attempt ledger: %w", err)
	}
	rt.closers = append(rt.closers, rt.ledger.Close)

	rt.catalog = curriculum.Default()
	if cfg.Orchestrator.CatalogPath != "" {
		rt.catalog, err = curriculum.Load(cfg.Orchestrator.CatalogPath)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("load curriculum: %w", err)
		}
	}

	rt.budget = budget.New(rt.store, rt.tracker, cfg.Budget.Limits(), cfg.Budget.AlertThreshold, clk, log)
	rt.limiter = ratelimit.New(rt.store, cfg.RateLimit.Default, cfg.RateLimit.Tiers, clk, log)
	rt.client = provider.New(
		router.New(cfg.Providers, cfg.Router.Routes),
		provider.BuildEndpoints(cfg.Providers),
		provider.WithLogger(log),
		provider.WithObserver(rt.metrics),
	)

	rt.orch = orchestrator.New(orchestrator.Deps{
		Store:     rt.store,
		Limiter:   rt.limiter,
		Budget:    rt.budget,
		Generator: rt.client,
		Catalog:   rt.catalog,
		Ledger:    rt.ledger,
		Metrics:   rt.metrics,
		Clock:     clk,
		Logger:    log,
	}, orchestrator.OptionsFromConfig(cfg.Orchestrator, cfg.Cache.ContentTTL))

	return rt, nil
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// openLedger opens only the attempt ledger.
func openLedger(cfg *config.Config) (*audit.Ledger, error) {
	l, err := audit.New(cfg.DBPath, cfg.Audit.RetentionDays, nil)
	if err != nil {
		return nil, fmt.Errorf("open attempt ledger: %w", err)
	}
	return l, nil
}
