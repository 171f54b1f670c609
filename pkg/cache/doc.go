// Package cache stores upstream responses for immutable Riot resources.
//
// Match details never change once a game has ended, so refetching them only
// spends rate limit budget. The Manager keeps responses in two layers:
//
//   - memory (github.com/patrickmn/go-cache), always present
//   - Redis, optional, shared between processes and surviving restarts
//
// A Get checks memory first and falls back to Redis, promoting Redis hits
// into memory. A Set writes both layers with the TTL derived from the entry's
// Expires field.
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.Config{
//		Redis:     redisClient, // may be nil
//		MemoryTTL: time.Hour,
//	})
//
//	key := cache.KeyFromURL(u)
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch upstream, then:
//		entry = cache.NewEntry(body, resp.Header, cache.DefaultTTL)
//		_ = manager.Set(ctx, key, entry)
//	}
//
// # Metrics
//
//   - tft_cache_hits_total{layer="memory"|"redis"}
//   - tft_cache_misses_total
//   - tft_cache_size_bytes{layer}
//   - tft_cache_errors_total{operation}
package cache
