package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Config configures the cache layers.
type Config struct {
	// Redis is the shared layer. Nil keeps the cache process-local.
	Redis *redis.Client

	// MemoryTTL caps how long an entry stays in memory. Zero uses the
	// entry's own TTL.
	MemoryTTL time.Duration

	// CleanupInterval is how often expired memory entries are purged.
	CleanupInterval time.Duration
}

// DefaultConfig returns a memory-only configuration.
func DefaultConfig() Config {
	return Config{
		MemoryTTL:       time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// Manager handles caching operations over a memory layer and an optional
// Redis layer.
type Manager struct {
	memory    *gocache.Cache
	redis     *redis.Client
	memoryTTL time.Duration
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) *Manager {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 10 * time.Minute
	}
	return &Manager{
		memory:    gocache.New(gocache.NoExpiration, cfg.CleanupInterval),
		redis:     cfg.Redis,
		memoryTTL: cfg.MemoryTTL,
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	if v, ok := m.memory.Get(cacheKey); ok {
		entry := v.(*CacheEntry)
		if !entry.IsExpired() {
			CacheHits.WithLabelValues("memory").Inc()
			return entry, nil
		}
		m.memory.Delete(cacheKey)
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	m.setMemory(cacheKey, &entry)

	return &entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
func (m *Manager) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	cacheKey := key.String()
	m.setMemory(cacheKey, entry)
	CacheSize.WithLabelValues("memory").Add(float64(len(entry.Data)))

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues("redis").Add(float64(len(data)))

	return nil
}

// Delete removes a cache entry from both layers.
func (m *Manager) Delete(ctx context.Context, key CacheKey) error {
	cacheKey := key.String()
	m.memory.Delete(cacheKey)

	if m.redis == nil {
		return nil
	}

	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// Len returns the number of entries in the memory layer.
func (m *Manager) Len() int {
	return m.memory.ItemCount()
}

func (m *Manager) setMemory(cacheKey string, entry *CacheEntry) {
	ttl := entry.TTL()
	if m.memoryTTL > 0 && m.memoryTTL < ttl {
		ttl = m.memoryTTL
	}
	if ttl <= 0 {
		return
	}
	m.memory.Set(cacheKey, entry, ttl)
}
