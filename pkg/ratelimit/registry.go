package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Window labels used in metrics and logs.
const (
	LabelShort = "short"
	LabelLong  = "long"
)

// DefaultPartitions are the upstream hosts that are throttled independently:
// the platform routing keys followed by the continental keys.
var DefaultPartitions = []string{"na1", "euw1", "kr", "br1", "jp1", "americas", "europe", "asia"}

// Config holds the limiter budget applied to every partition.
type Config struct {
	ShortWindow time.Duration
	ShortMax    int
	LongWindow  time.Duration
	LongMax     int

	// Partitions lists the keys that get their own Gate.
	Partitions []string
	// Default is the partition whose Gate serves unknown keys.
	Default string
}

// DefaultConfig returns the development key budget: 20 requests per second
// and 100 requests per two minutes.
func DefaultConfig() Config {
	return Config{
		ShortWindow: time.Second,
		ShortMax:    20,
		LongWindow:  2 * time.Minute,
		LongMax:     100,
		Partitions:  DefaultPartitions,
		Default:     "na1",
	}
}

// Validate checks the budget for usable values.
func (c Config) Validate() error {
	if c.ShortWindow <= 0 || c.LongWindow <= 0 {
		return fmt.Errorf("windows must be positive (short=%s, long=%s)", c.ShortWindow, c.LongWindow)
	}
	if c.ShortMax <= 0 || c.LongMax <= 0 {
		return fmt.Errorf("max requests must be positive (short=%d, long=%d)", c.ShortMax, c.LongMax)
	}
	if len(c.Partitions) == 0 {
		return fmt.Errorf("at least one partition is required")
	}
	for _, p := range c.Partitions {
		if strings.EqualFold(p, c.Default) {
			return nil
		}
	}
	return fmt.Errorf("default partition %q is not in partitions", c.Default)
}

// Gate is the two-stage admission for one partition. A caller passes the
// short window first and the long window second, so long window scarcity
// still blocks when burst capacity exists. Only one caller is between the
// two windows at a time; the rest wait for their turn in arrival order.
type Gate struct {
	short *Window
	long  *Window

	mu    sync.Mutex
	busy  bool
	turns []*turn
}

// turn is a caller waiting to enter the gate. granted is guarded by Gate.mu.
type turn struct {
	ready   chan struct{}
	granted bool
}

// NewGate creates the gate for a partition.
func NewGate(partition string, cfg Config) *Gate {
	return &Gate{
		short: NewWindow(partition, LabelShort, cfg.ShortWindow, cfg.ShortMax),
		long:  NewWindow(partition, LabelLong, cfg.LongWindow, cfg.LongMax),
	}
}

// Acquire blocks until both windows admit the caller. Callers are admitted
// in the order they called Acquire.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.enter(ctx); err != nil {
		return err
	}
	defer g.leave()

	if err := g.short.Acquire(ctx); err != nil {
		return err
	}
	return g.long.Acquire(ctx)
}

// enter waits until the caller holds the gate.
func (g *Gate) enter(ctx context.Context) error {
	g.mu.Lock()
	if !g.busy && len(g.turns) == 0 {
		g.busy = true
		g.mu.Unlock()
		return nil
	}
	t := &turn{ready: make(chan struct{})}
	g.turns = append(g.turns, t)
	g.mu.Unlock()

	select {
	case <-t.ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		if t.granted {
			// The gate was handed over while ctx ended; pass it on.
			g.mu.Unlock()
			g.leave()
			return ctx.Err()
		}
		for i, q := range g.turns {
			if q == t {
				g.turns = append(g.turns[:i], g.turns[i+1:]...)
				break
			}
		}
		g.mu.Unlock()
		return ctx.Err()
	}
}

// leave hands the gate to the oldest waiting caller.
func (g *Gate) leave() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.turns) == 0 {
		g.busy = false
		return
	}
	next := g.turns[0]
	g.turns[0] = nil
	g.turns = g.turns[1:]
	next.granted = true
	close(next.ready)
}

// pending reports the number of callers waiting to enter the gate.
func (g *Gate) pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.turns)
}

// Close stops both windows.
func (g *Gate) Close() {
	g.short.Close()
	g.long.Close()
}

// Registry owns one Gate per partition.
type Registry struct {
	gates    map[string]*Gate
	fallback *Gate
	logger   zerolog.Logger
}

// NewRegistry creates gates for every configured partition.
func NewRegistry(cfg Config, logger zerolog.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}

	r := &Registry{
		gates:  make(map[string]*Gate, len(cfg.Partitions)),
		logger: logger,
	}
	for _, p := range cfg.Partitions {
		key := strings.ToLower(p)
		if _, ok := r.gates[key]; ok {
			continue
		}
		r.gates[key] = NewGate(key, cfg)
	}
	r.fallback = r.gates[strings.ToLower(cfg.Default)]

	logger.Debug().
		Int("partitions", len(r.gates)).
		Dur("short_window", cfg.ShortWindow).
		Int("short_max", cfg.ShortMax).
		Dur("long_window", cfg.LongWindow).
		Int("long_max", cfg.LongMax).
		Msg("Rate limiter registry created")

	return r, nil
}

// Acquire waits for admission on the partition's gate. Unknown partitions
// share the default partition's gate.
func (r *Registry) Acquire(ctx context.Context, partition string) error {
	return r.gate(partition).Acquire(ctx)
}

func (r *Registry) gate(partition string) *Gate {
	if g, ok := r.gates[strings.ToLower(partition)]; ok {
		return g
	}
	r.logger.Debug().Str("partition", partition).Msg("Unknown partition, using default limiter")
	return r.fallback
}

// Close stops every gate.
func (r *Registry) Close() {
	for _, g := range r.gates {
		g.Close()
	}
}
