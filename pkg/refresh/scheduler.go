package refresh

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/tft-meta-stats/pkg/logging"
)

// Runner is a single refresh.
type Runner interface {
	Run(ctx context.Context) (Report, error)
}

// Scheduler runs a job immediately and then once per interval.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	count    int
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler.
func NewScheduler(r Runner, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   r,
		interval: interval,
		logger:   logging.NewLogger("scheduler"),
	}
}

// Run blocks until ctx is cancelled. A failed run is logged and retried at
// the next tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.logger.Info().Int("count", s.count).Msg("Scheduled refresh started")
		rep, err := s.runner.Run(ctx)
		if err != nil {
			s.logger.Error().Err(err).Str("run_id", rep.RunID).Msg("Scheduled refresh failed")
		} else {
			s.logger.Info().Int("count", s.count).Int("matches", rep.TotalMatches).Msg("Scheduled refresh finished")
		}
		s.count++

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
