// Package refresh drives the periodic data refresh: ingest every partition,
// aggregate the fresh matches, persist the statistics and prune old data.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goredislib "github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/tft-meta-stats/pkg/aggregate"
	"github.com/Sternrassler/tft-meta-stats/pkg/ingest"
	"github.com/Sternrassler/tft-meta-stats/pkg/logging"
	"github.com/Sternrassler/tft-meta-stats/pkg/match"
	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
	"github.com/Sternrassler/tft-meta-stats/pkg/store"
)

var (
	refreshRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tft_refresh_runs_total",
		Help: "Refresh job runs by result",
	}, []string{"result"})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tft_refresh_duration_seconds",
		Help:    "Refresh job duration in seconds",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
	})

	statsSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tft_stats_saved_total",
		Help: "Stats snapshots written by kind",
	}, []string{"kind"})
)

// Ingester collects matches for one partition.
type Ingester interface {
	ProcessPartition(ctx context.Context, key string, limit int) ingest.Result
}

// Locker serializes refresh runs across processes.
type Locker interface {
	LockContext(ctx context.Context) error
	UnlockContext(ctx context.Context) (bool, error)
}

// NewRedisLocker returns a distributed lock shared by every process using client.
func NewRedisLocker(client *goredislib.Client) Locker {
	rs := redsync.New(goredis.NewPool(client))
	return rs.NewMutex("mutex:tftstats:refresh", redsync.WithExpiry(30*time.Minute), redsync.WithTries(2))
}

// Config tunes a refresh run.
type Config struct {
	// Partitions are processed in order. Empty means riot.PartitionKeys.
	Partitions []string
	// MatchesPerPartition bounds ingestion per partition.
	MatchesPerPartition int
	// MinPartitionMatches is the fewest matches a partition needs for its own stats.
	MinPartitionMatches int
	// MinGlobalMatches is the fewest matches across partitions for "all" stats.
	MinGlobalMatches int
	// Retention is how long cached matches are kept.
	Retention time.Duration
}

// DefaultConfig returns the production refresh settings.
func DefaultConfig() Config {
	return Config{
		Partitions:          riot.PartitionKeys(),
		MatchesPerPartition: 30,
		MinPartitionMatches: 5,
		MinGlobalMatches:    20,
		Retention:           7 * 24 * time.Hour,
	}
}

// PartitionReport is the outcome of one partition within a run.
type PartitionReport struct {
	Partition  string      `json:"partition"`
	Status     riot.Status `json:"status"`
	Reason     string      `json:"reason,omitempty"`
	Matches    int         `json:"matches"`
	StatsSaved bool        `json:"statsSaved"`
}

// Report summarizes a refresh run.
type Report struct {
	RunID        string            `json:"runId"`
	Partitions   []PartitionReport `json:"partitions"`
	TotalMatches int               `json:"matchCount"`
	GlobalStats  bool              `json:"globalStats"`
	Duration     time.Duration     `json:"duration"`
}

// Job runs refreshes. A nil locker runs without cross-process exclusion.
type Job struct {
	ingester Ingester
	engine   *aggregate.Engine
	store    store.Store
	locker   Locker
	config   Config
	logger   zerolog.Logger
}

// NewJob creates a refresh job.
func NewJob(ing Ingester, eng *aggregate.Engine, st store.Store, locker Locker, cfg Config) *Job {
	def := DefaultConfig()
	if len(cfg.Partitions) == 0 {
		cfg.Partitions = def.Partitions
	}
	if cfg.MatchesPerPartition <= 0 {
		cfg.MatchesPerPartition = def.MatchesPerPartition
	}
	if cfg.MinPartitionMatches <= 0 {
		cfg.MinPartitionMatches = def.MinPartitionMatches
	}
	if cfg.MinGlobalMatches <= 0 {
		cfg.MinGlobalMatches = def.MinGlobalMatches
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	return &Job{
		ingester: ing,
		engine:   eng,
		store:    st,
		locker:   locker,
		config:   cfg,
		logger:   logging.NewLogger("refresh"),
	}
}

// Run performs one refresh. Partition failures are reported, not returned;
// an error means the lock could not be taken or the store failed.
func (j *Job) Run(ctx context.Context) (rep Report, err error) {
	start := time.Now()
	rep.RunID = xid.New().String()
	logger := j.logger.With().Str("run_id", rep.RunID).Logger()

	defer func() {
		rep.Duration = time.Since(start)
		result := "success"
		if err != nil {
			result = "error"
		}
		refreshRunsTotal.WithLabelValues(result).Inc()
		refreshDuration.Observe(rep.Duration.Seconds())
	}()

	if j.locker != nil {
		if err := j.locker.LockContext(ctx); err != nil {
			logger.Warn().Err(err).Msg("Refresh already running elsewhere")
			return rep, fmt.Errorf("acquire refresh lock: %w", err)
		}
		defer func() {
			if _, uerr := j.locker.UnlockContext(context.WithoutCancel(ctx)); uerr != nil {
				logger.Warn().Err(uerr).Msg("Failed to release refresh lock")
			}
		}()
	}

	logger.Info().Strs("partitions", j.config.Partitions).Msg("Refresh started")

	var all []match.Match
	for _, key := range j.config.Partitions {
		res := j.ingester.ProcessPartition(ctx, key, j.config.MatchesPerPartition)
		all = append(all, res.Matches...)

		pr := PartitionReport{
			Partition: res.Partition,
			Status:    res.Status,
			Reason:    res.Reason,
			Matches:   len(res.Matches),
		}

		if len(res.Matches) < j.config.MinPartitionMatches {
			logger.Info().
				Str("partition", res.Partition).
				Int("matches", len(res.Matches)).
				Msg("Insufficient matches, skipping partition stats")
			rep.Partitions = append(rep.Partitions, pr)
			continue
		}

		if _, err := j.saveStats(ctx, res.Matches, res.Partition); err != nil {
			rep.Partitions = append(rep.Partitions, pr)
			return rep, err
		}
		pr.StatsSaved = true
		rep.Partitions = append(rep.Partitions, pr)
		logger.Info().Str("partition", res.Partition).Int("matches", len(res.Matches)).Msg("Partition stats saved")
	}
	rep.TotalMatches = len(all)

	if len(all) >= j.config.MinGlobalMatches {
		if _, err := j.saveStats(ctx, all, store.AllPartitions); err != nil {
			return rep, err
		}
		rep.GlobalStats = true
	} else {
		logger.Info().Int("matches", len(all)).Msg("Insufficient total matches, skipping global stats")
	}

	if err := j.store.Cleanup(ctx, j.config.Retention); err != nil {
		return rep, fmt.Errorf("cleanup: %w", err)
	}

	logger.Info().
		Int("matches", rep.TotalMatches).
		Bool("global_stats", rep.GlobalStats).
		Dur("duration", time.Since(start)).
		Msg("Refresh completed")
	return rep, nil
}

// Reaggregate rebuilds and saves the stats of one partition ("" or "all" for
// every partition) from the matches already in the store.
func (j *Job) Reaggregate(ctx context.Context, partition string) (*aggregate.Result, error) {
	label := store.CanonicalPartition(partition)

	cached, err := j.store.CachedMatches(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("load cached matches: %w", err)
	}
	matches, skipped := store.DecodeMatches(cached)
	if skipped > 0 {
		j.logger.Warn().Str("partition", label).Int("skipped", skipped).Msg("Skipped undecodable cached matches")
	}

	return j.saveStats(ctx, matches, label)
}

// saveStats aggregates matches and writes the compositions payload plus one
// payload per entity kind.
func (j *Job) saveStats(ctx context.Context, matches []match.Match, partition string) (*aggregate.Result, error) {
	res := j.engine.Process(matches, partition)

	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode %s stats: %w", partition, err)
	}
	if err := j.store.SaveProcessedStats(ctx, store.KindCompositions, partition, data); err != nil {
		return nil, fmt.Errorf("save %s compositions: %w", partition, err)
	}
	statsSavedTotal.WithLabelValues(store.KindCompositions).Inc()

	for _, kind := range store.EntityKinds {
		data, err := json.Marshal(aggregate.EntitiesPayload{Entities: res.Entities(kind), Region: partition})
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", partition, kind, err)
		}
		if err := j.store.SaveProcessedStats(ctx, kind, partition, data); err != nil {
			return nil, fmt.Errorf("save %s %s: %w", partition, kind, err)
		}
		statsSavedTotal.WithLabelValues(kind).Inc()
	}
	return res, nil
}
