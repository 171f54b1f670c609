package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientLimiter keeps a token bucket per client address.
type clientLimiter struct {
	mu      sync.Mutex
	entries map[string]*clientEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type clientEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{
		entries: make(map[string]*clientEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
	}
}

func (l *clientLimiter) allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	ent, ok := l.entries[key]
	if !ok {
		ent = &clientEntry{lim: rate.NewLimiter(l.rps, l.burst)}
		l.entries[key] = ent
	}
	ent.lastSeen = now
	l.mu.Unlock()

	return ent.lim.AllowN(now, 1)
}

// cleanup drops buckets idle for longer than idleTTL.
func (l *clientLimiter) cleanup() {
	cutoff := time.Now().Add(-l.idleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for k, ent := range l.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// janitor runs cleanup every interval until ctx ends.
func (l *clientLimiter) janitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.cleanup()
		}
	}
}

// clientKey identifies the caller: the first X-Forwarded-For hop when
// trusted, otherwise the remote host.
func clientKey(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
