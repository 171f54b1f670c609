package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/tft-meta-stats/pkg/logging"
)

// Config holds batch fetcher configuration
type Config struct {
	// BatchSize is the number of concurrent requests per batch
	BatchSize int
	// Delay is the pause between consecutive batches
	Delay time.Duration
}

// DefaultConfig returns the configuration used for match details
func DefaultConfig() Config {
	return Config{
		BatchSize: 4,
		Delay:     150 * time.Millisecond,
	}
}

// ItemFetcher fetches a single resource by id. found is false when the
// upstream had no usable data; err is reserved for failures that should stop
// the whole run.
type ItemFetcher interface {
	FetchItem(ctx context.Context, id string) (data []byte, found bool, err error)
}

// FetchFunc adapts a function to ItemFetcher.
type FetchFunc func(ctx context.Context, id string) ([]byte, bool, error)

// FetchItem implements ItemFetcher.
func (f FetchFunc) FetchItem(ctx context.Context, id string) ([]byte, bool, error) {
	return f(ctx, id)
}

// Result is one fetched resource.
type Result struct {
	ID   string
	Data []byte
}

// BatchHandler receives the found results of each batch as soon as the
// batch completes.
type BatchHandler func(ctx context.Context, results []Result) error

// BatchFetcher fetches ids in fixed-size batches
type BatchFetcher struct {
	fetcher ItemFetcher
	config  Config
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher
func NewBatchFetcher(fetcher ItemFetcher, config Config) *BatchFetcher {
	if config.BatchSize <= 0 {
		config.BatchSize = 4
	}
	if config.Delay < 0 {
		config.Delay = 0
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
		sleep:   sleepContext,
		logger:  logging.NewLogger("batch"),
	}
}

// FetchAll fetches every id and returns the found results in request order.
// onBatch, when non-nil, runs after each batch; its error is logged and does
// not stop the run.
func (bf *BatchFetcher) FetchAll(ctx context.Context, ids []string, onBatch BatchHandler) ([]Result, error) {
	start := time.Now()
	results := make([]Result, 0, len(ids))
	batches := (len(ids) + bf.config.BatchSize - 1) / bf.config.BatchSize

	for b := 0; b < batches; b++ {
		lo := b * bf.config.BatchSize
		hi := lo + bf.config.BatchSize
		if hi > len(ids) {
			hi = len(ids)
		}

		found, err := bf.fetchBatch(ctx, ids[lo:hi])
		results = append(results, found...)

		if onBatch != nil && len(found) > 0 {
			if herr := onBatch(ctx, found); herr != nil {
				bf.logger.Warn().
					Err(herr).
					Int("batch", b+1).
					Msg("Batch handler failed")
			}
		}

		if err != nil {
			bf.logger.Warn().
				Err(err).
				Int("fetched", len(results)).
				Int("total", len(ids)).
				Msg("Batch fetch aborted - returning partial results")
			return results, fmt.Errorf("batch %d/%d (partial data: %d/%d): %w", b+1, batches, len(results), len(ids), err)
		}

		if b+1 < batches {
			if err := bf.sleep(ctx, bf.config.Delay); err != nil {
				return results, fmt.Errorf("batch delay: %w", err)
			}
		}
	}

	bf.logger.Debug().
		Int("fetched", len(results)).
		Int("total", len(ids)).
		Int("batches", batches).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	return results, nil
}

// fetchBatch fetches ids concurrently. Found results keep request order; the
// first error encountered is returned alongside them.
func (bf *BatchFetcher) fetchBatch(ctx context.Context, ids []string) ([]Result, error) {
	slots := make([]*Result, len(ids))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()

			data, found, err := bf.fetcher.FetchItem(ctx, id)
			if err != nil {
				bf.logger.Warn().Err(err).Str("id", id).Msg("Item fetch failed")
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			if !found {
				return
			}
			slots[i] = &Result{ID: id, Data: data}
		}(i, id)
	}
	wg.Wait()

	out := make([]Result, 0, len(ids))
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, firstErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
