package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/tft-meta-stats/internal/config"
	"github.com/Sternrassler/tft-meta-stats/pkg/aggregate"
	"github.com/Sternrassler/tft-meta-stats/pkg/cache"
	"github.com/Sternrassler/tft-meta-stats/pkg/catalog"
	"github.com/Sternrassler/tft-meta-stats/pkg/client"
	"github.com/Sternrassler/tft-meta-stats/pkg/ingest"
	"github.com/Sternrassler/tft-meta-stats/pkg/logging"
	"github.com/Sternrassler/tft-meta-stats/pkg/ratelimit"
	"github.com/Sternrassler/tft-meta-stats/pkg/refresh"
	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
	"github.com/Sternrassler/tft-meta-stats/pkg/store"
)

// deps are the long-lived components shared by the commands.
type deps struct {
	cfg     *config.Config
	store   store.Store
	redis   *redis.Client
	catalog *catalog.Catalog
	closers []func()
}

// openDeps connects the configured store, the optional Redis client and the catalog.
func openDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{cfg: cfg}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		d.redis = redis.NewClient(opts)
		if err := d.redis.Ping(ctx).Err(); err != nil {
			d.redis.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		d.closers = append(d.closers, func() { d.redis.Close() })
	}

	st, err := d.openStore(ctx)
	if err != nil {
		d.close()
		return nil, err
	}
	d.store = st
	d.closers = append(d.closers, func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close store")
		}
	})

	d.catalog, err = loadCatalog(cfg.CatalogDir)
	if err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *deps) openStore(ctx context.Context) (store.Store, error) {
	switch d.cfg.StoreDriver {
	case config.DriverRedis:
		// The client is shared with the cache and the refresh lock; deps closes it.
		return noClose{store.NewRedis(d.redis)}, nil
	case config.DriverPostgres:
		pg, err := store.OpenPostgres(ctx, d.cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return pg, nil
	case config.DriverSQLite:
		return store.OpenSQLite(ctx, d.cfg.SQLitePath)
	default:
		return store.NewMemory(), nil
	}
}

// noClose leaves connection shutdown to deps.
type noClose struct{ store.Store }

func (noClose) Close() error { return nil }

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Empty(), nil
	}
	c, err := catalog.Load(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// newJob wires limiter, cache, fetcher and orchestrator into a refresh job.
func (d *deps) newJob() (*refresh.Job, error) {
	if !d.cfg.HasAPIKey() {
		return nil, &client.ConfigError{Field: "api_key", Message: "RIOT_API_KEY is not set"}
	}

	rlCfg := ratelimit.DefaultConfig()
	rlCfg.ShortWindow = d.cfg.RateShortWindow
	rlCfg.ShortMax = d.cfg.RateShortMax
	rlCfg.LongWindow = d.cfg.RateLongWindow
	rlCfg.LongMax = d.cfg.RateLongMax
	rlCfg.Partitions = riot.LimiterKeys()
	limiter, err := ratelimit.NewRegistry(rlCfg, logging.NewLogger("ratelimit"))
	if err != nil {
		return nil, err
	}
	d.closers = append(d.closers, limiter.Close)

	cacheCfg := cache.DefaultConfig()
	cacheCfg.Redis = d.redis

	clientCfg := client.DefaultConfig(d.cfg.RiotAPIKey, limiter)
	clientCfg.Cache = cache.NewManager(cacheCfg)
	clientCfg.Cacheable = riot.IsMatchDetail
	fetcher, err := client.New(clientCfg)
	if err != nil {
		return nil, err
	}

	var locker refresh.Locker
	if d.redis != nil {
		locker = refresh.NewRedisLocker(d.redis)
	}

	refreshCfg := refresh.DefaultConfig()
	refreshCfg.MatchesPerPartition = d.cfg.MatchesPerPartition

	orch := ingest.New(fetcher, d.store, ingest.DefaultConfig())
	return refresh.NewJob(orch, aggregate.NewEngine(d.catalog), d.store, locker, refreshCfg), nil
}

// newReaggregator builds a job that only reads the store.
func (d *deps) newReaggregator() *refresh.Job {
	return refresh.NewJob(nil, aggregate.NewEngine(d.catalog), d.store, nil, refresh.DefaultConfig())
}
