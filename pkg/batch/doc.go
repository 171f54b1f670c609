// Package batch fetches a list of resources in fixed-size concurrent batches.
//
// The Riot development key allows short bursts only, so match details are
// requested a few at a time with a pause between batches instead of through
// an unbounded worker pool. Each batch's successful results are handed to a
// callback before the next batch starts, so they can be persisted
// immediately and survive a later failure in the same run.
//
// Example usage:
//
//	fetcher := batch.NewBatchFetcher(itemFetcher, batch.DefaultConfig())
//	results, err := fetcher.FetchAll(ctx, matchIDs, func(ctx context.Context, rs []batch.Result) error {
//		return persist(ctx, rs)
//	})
//
// The batch fetcher:
//   - Splits ids into batches of BatchSize (default 4)
//   - Fetches every id of a batch concurrently
//   - Keeps only found results, in request order
//   - Waits Delay (default 150ms) between batches
//   - Stops after the batch in which a fetch returned an error and returns
//     the partial results with that error
package batch
