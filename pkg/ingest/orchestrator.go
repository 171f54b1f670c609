// Package ingest runs the per-partition ingestion workflow: sample the top of
// the leaderboard, collect recent match ids, fetch match details in bounded
// batches, persist them, and report partition health.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/Sternrassler/tft-meta-stats/pkg/batch"
	"github.com/Sternrassler/tft-meta-stats/pkg/client"
	"github.com/Sternrassler/tft-meta-stats/pkg/logging"
	"github.com/Sternrassler/tft-meta-stats/pkg/match"
	"github.com/Sternrassler/tft-meta-stats/pkg/riot"
	"github.com/Sternrassler/tft-meta-stats/pkg/store"
)

var (
	ingestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tft_ingest_runs_total",
		Help: "Partition ingestion runs by final status",
	}, []string{"partition", "status"})

	ingestMatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tft_ingest_matches_total",
		Help: "Match details ingested per partition",
	}, []string{"partition"})

	ingestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tft_ingest_duration_seconds",
		Help:    "Partition ingestion run duration in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	}, []string{"partition"})
)

// Fetcher is the upstream access the orchestrator needs.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, opts ...client.CallOption) ([]byte, bool, error)
	GetJSON(ctx context.Context, rawURL string, out any, opts ...client.CallOption) (bool, error)
}

// CallPolicy bounds one class of upstream calls.
type CallPolicy struct {
	Timeout    time.Duration
	MaxRetries int
}

func (p CallPolicy) options() []client.CallOption {
	var opts []client.CallOption
	if p.Timeout > 0 {
		opts = append(opts, client.WithTimeout(p.Timeout))
	}
	if p.MaxRetries > 0 {
		opts = append(opts, client.WithMaxRetries(p.MaxRetries))
	}
	return opts
}

// Config tunes the workflow.
type Config struct {
	// TopPlayers is how many leaderboard entries are sampled. More than the
	// breaker needs so individual identity failures are tolerated.
	TopPlayers int
	// MatchListTarget stops match-list fetching once this many non-empty
	// lists were collected.
	MatchListTarget int
	// MatchIDCount is how many ids are requested per player.
	MatchIDCount int

	Leaderboard CallPolicy
	Identity    CallPolicy
	MatchList   CallPolicy
	Detail      CallPolicy

	// Batch controls match detail fetching.
	Batch batch.Config

	// HostFormat overrides the upstream host pattern. Empty uses riot.DefaultHostFormat.
	HostFormat string
}

// DefaultConfig returns the production workflow settings.
func DefaultConfig() Config {
	return Config{
		TopPlayers:      4,
		MatchListTarget: 2,
		MatchIDCount:    riot.DefaultMatchIDCount,
		Leaderboard:     CallPolicy{Timeout: 15 * time.Second, MaxRetries: 3},
		Identity:        CallPolicy{Timeout: 8 * time.Second, MaxRetries: 2},
		MatchList:       CallPolicy{Timeout: 10 * time.Second, MaxRetries: 2},
		Detail:          CallPolicy{Timeout: 8 * time.Second, MaxRetries: 2},
		Batch:           batch.DefaultConfig(),
	}
}

// Result is the outcome of one partition run.
type Result struct {
	Partition string
	Matches   []match.Match
	Status    riot.Status
	Reason    string
}

// Orchestrator runs ingestion for one partition at a time.
type Orchestrator struct {
	fetcher Fetcher
	store   store.Store
	config  Config
	logger  zerolog.Logger
}

// New creates an orchestrator. store may be nil, in which case matches are
// neither persisted nor is partition health recorded.
func New(fetcher Fetcher, st store.Store, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.TopPlayers <= 0 {
		cfg.TopPlayers = def.TopPlayers
	}
	if cfg.MatchListTarget <= 0 {
		cfg.MatchListTarget = def.MatchListTarget
	}
	if cfg.MatchIDCount <= 0 {
		cfg.MatchIDCount = def.MatchIDCount
	}
	return &Orchestrator{
		fetcher: fetcher,
		store:   st,
		config:  cfg,
		logger:  logging.NewLogger("ingest"),
	}
}

// errDegraded ends a run early without it being a failure.
type errDegraded struct{ reason string }

func (e *errDegraded) Error() string { return e.reason }

// ProcessPartition ingests up to limit matches for the partition. It never
// returns an error: failures are reported through Result.Status, and the
// matches collected before a failure are still returned.
func (o *Orchestrator) ProcessPartition(ctx context.Context, key string, limit int) (res Result) {
	start := time.Now()
	logger := o.logger.With().Str("partition", key).Logger()

	var collected []match.Match
	res.Partition = key

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Partition run panicked")
			res.Status = riot.StatusError
			res.Reason = fmt.Sprintf("panic: %v", r)
			o.setStatus(ctx, logger, res.Partition, res.Status, res.Reason)
		}
		res.Matches = collected
		if res.Matches == nil {
			res.Matches = []match.Match{}
		}
		ingestRunsTotal.WithLabelValues(res.Partition, string(res.Status)).Inc()
		ingestDuration.WithLabelValues(res.Partition).Observe(time.Since(start).Seconds())
	}()

	p, ok := riot.Lookup(key)
	if !ok {
		res.Status = riot.StatusError
		res.Reason = fmt.Sprintf("unknown partition %q", key)
		logger.Error().Msg("Unknown partition")
		return res
	}
	res.Partition = p.Key

	o.setStatus(ctx, logger, p.Key, riot.StatusProcessing, "")

	err := o.run(ctx, p, limit, logger, &collected)

	var degraded *errDegraded
	switch {
	case err == nil:
		res.Status = riot.StatusActive
		logger.Info().
			Int("matches", len(collected)).
			Dur("duration", time.Since(start)).
			Msg("Partition processed")
	case errors.As(err, &degraded):
		res.Status = riot.StatusDegraded
		res.Reason = degraded.reason
		logger.Warn().Str("reason", degraded.reason).Msg("Partition degraded")
	default:
		res.Status = riot.StatusError
		res.Reason = err.Error()
		logger.Error().Err(err).Int("matches", len(collected)).Msg("Partition run failed")
	}

	o.setStatus(ctx, logger, p.Key, res.Status, res.Reason)
	return res
}

func (o *Orchestrator) run(ctx context.Context, p riot.Partition, limit int, logger zerolog.Logger, collected *[]match.Match) error {
	eps := riot.NewEndpoints(p, o.config.HostFormat)

	var league riot.League
	found, err := o.fetcher.GetJSON(ctx, eps.Leaderboard(), &league, o.config.Leaderboard.options()...)
	if err != nil {
		return fmt.Errorf("fetch leaderboard: %w", err)
	}
	if !found || len(league.Entries) == 0 {
		return &errDegraded{reason: "No league data available"}
	}

	players := riot.TopEntries(league.Entries, o.config.TopPlayers)
	if len(players) == 0 {
		return &errDegraded{reason: "No players found"}
	}

	puuids, err := o.fetchIdentities(ctx, eps, players)
	if err != nil {
		return err
	}
	if len(puuids) == 0 {
		return &errDegraded{reason: "No summoner data available"}
	}

	lists, err := o.fetchMatchLists(ctx, eps, puuids)
	if err != nil {
		return err
	}

	ids := lo.Uniq(lo.Flatten(lists))
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	if len(ids) == 0 {
		return &errDegraded{reason: "No matches found"}
	}

	logger.Info().Int("match_ids", len(ids)).Msg("Fetching match details")
	return o.fetchDetails(ctx, eps, ids, logger, collected)
}

// fetchIdentities resolves players concurrently. Failed lookups are dropped;
// the surviving puuids keep leaderboard order.
func (o *Orchestrator) fetchIdentities(ctx context.Context, eps riot.Endpoints, players []riot.LeagueEntry) ([]string, error) {
	puuids := make([]string, len(players))

	g, gctx := errgroup.WithContext(ctx)
	for i, player := range players {
		g.Go(func() error {
			var s riot.Summoner
			found, err := o.fetcher.GetJSON(gctx, eps.Summoner(player.SummonerID), &s, o.config.Identity.options()...)
			if err != nil {
				return fmt.Errorf("fetch summoner %s: %w", player.SummonerID, err)
			}
			if found {
				puuids[i] = s.PUUID
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return lo.Compact(puuids), nil
}

// fetchMatchLists walks players in order and stops once MatchListTarget
// non-empty lists were collected.
func (o *Orchestrator) fetchMatchLists(ctx context.Context, eps riot.Endpoints, puuids []string) ([][]string, error) {
	var lists [][]string
	for _, puuid := range puuids {
		if len(lists) >= o.config.MatchListTarget {
			break
		}
		var ids []string
		found, err := o.fetcher.GetJSON(ctx, eps.MatchIDs(puuid, o.config.MatchIDCount), &ids, o.config.MatchList.options()...)
		if err != nil {
			return nil, fmt.Errorf("fetch match ids: %w", err)
		}
		if found && len(ids) > 0 {
			lists = append(lists, ids)
		}
	}
	return lists, nil
}

// fetchDetails fetches match details in batches, normalizing and persisting
// each batch as soon as it completes.
func (o *Orchestrator) fetchDetails(ctx context.Context, eps riot.Endpoints, ids []string, logger zerolog.Logger, collected *[]match.Match) error {
	opts := o.config.Detail.options()
	fetcher := batch.NewBatchFetcher(batch.FetchFunc(func(ctx context.Context, id string) ([]byte, bool, error) {
		return o.fetcher.Get(ctx, eps.Match(id), opts...)
	}), o.config.Batch)

	partition := eps.Partition().Key
	_, err := fetcher.FetchAll(ctx, ids, func(ctx context.Context, results []batch.Result) error {
		var saveErrs []error
		for _, r := range results {
			m, nerr := riot.Normalize(r.Data, partition)
			if nerr != nil {
				logger.Warn().Err(nerr).Str("match_id", r.ID).Msg("Skipping unusable match payload")
				continue
			}
			*collected = append(*collected, m)
			ingestMatchesTotal.WithLabelValues(partition).Inc()

			if serr := o.saveMatch(ctx, partition, m); serr != nil {
				saveErrs = append(saveErrs, serr)
			}
		}
		return errors.Join(saveErrs...)
	})
	if err != nil {
		return fmt.Errorf("fetch match details: %w", err)
	}
	return nil
}

func (o *Orchestrator) saveMatch(ctx context.Context, partition string, m match.Match) error {
	if o.store == nil {
		return nil
	}
	payload, err := store.MarshalMatch(m)
	if err != nil {
		return fmt.Errorf("encode match %s: %w", m.ID, err)
	}
	return o.store.SaveMatch(ctx, m.ID, partition, payload)
}

// setStatus records partition health. Failures are logged only; a status
// write must not change the run outcome.
func (o *Orchestrator) setStatus(ctx context.Context, logger zerolog.Logger, partition string, status riot.Status, reason string) {
	if o.store == nil {
		return
	}
	// The final status is written even when the run ended by cancellation.
	ctx = context.WithoutCancel(ctx)
	if err := o.store.UpdatePartitionStatus(ctx, partition, status, reason); err != nil {
		logger.Warn().Err(err).Str("status", string(status)).Msg("Failed to update partition status")
	}
}
