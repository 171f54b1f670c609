// Package ratelimit implements the sliding-window admission control that keeps
// upstream traffic within the Riot API budget. Every partition owns a Gate made
// of two windows (a short burst window and a long sustained window); callers
// must pass both before a request is sent.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for limiter admission.
var (
	rateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tft_ratelimit_wait_seconds",
		Help:    "Time callers spent queued before admission by partition and window",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
	}, []string{"partition", "window"})

	rateLimitQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tft_ratelimit_queue_depth",
		Help: "Number of callers waiting for admission by partition and window",
	}, []string{"partition", "window"})
)

// minRearm bounds how soon the expiry timer may fire again, so a timer that
// wakes marginally before the oldest timestamp expires does not spin.
const minRearm = time.Millisecond

// waiter is a queued Acquire call. admitted is guarded by Window.mu.
type waiter struct {
	ready    chan struct{}
	admitted bool
	queuedAt time.Time
}

// Window admits at most max operations within any rolling window interval.
// Callers that cannot be admitted immediately are queued and released in
// arrival order.
type Window struct {
	partition string
	label     string
	window    time.Duration
	max       int

	mu      sync.Mutex
	stamps  []time.Time
	waiters []*waiter
	timer   *time.Timer
	closed  bool

	stop      chan struct{}
	closeOnce sync.Once
	now       func() time.Time
}

// NewWindow creates a window admitting max operations per window duration and
// starts its periodic sweep. Close must be called to stop the sweep.
func NewWindow(partition, label string, window time.Duration, max int) *Window {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Second
	}

	w := &Window{
		partition: partition,
		label:     label,
		window:    window,
		max:       max,
		stop:      make(chan struct{}),
		now:       time.Now,
	}

	go w.sweep()
	return w
}

// Acquire blocks until the window admits the caller. It only returns an error
// when ctx ends first, in which case the caller is removed from the queue and
// no slot is consumed.
func (w *Window) Acquire(ctx context.Context) error {
	w.mu.Lock()
	now := w.now()
	w.pruneLocked(now)

	// Queued callers go first: admitting a newcomer while others wait would
	// break arrival order.
	if len(w.waiters) == 0 && len(w.stamps) < w.max {
		w.stamps = append(w.stamps, now)
		w.mu.Unlock()
		return nil
	}

	wt := &waiter{ready: make(chan struct{}), queuedAt: now}
	w.waiters = append(w.waiters, wt)
	rateLimitQueueDepth.WithLabelValues(w.partition, w.label).Set(float64(len(w.waiters)))
	w.armLocked(now)
	w.mu.Unlock()

	select {
	case <-wt.ready:
		rateLimitWaitSeconds.WithLabelValues(w.partition, w.label).Observe(time.Since(wt.queuedAt).Seconds())
		return nil
	case <-ctx.Done():
		w.mu.Lock()
		defer w.mu.Unlock()
		if wt.admitted {
			// Admission raced with cancellation; the slot is already recorded.
			return nil
		}
		w.removeLocked(wt)
		rateLimitQueueDepth.WithLabelValues(w.partition, w.label).Set(float64(len(w.waiters)))
		// Removing a head waiter may let the next one through.
		w.flushLocked(w.now())
		return ctx.Err()
	}
}

// Close stops the sweep and the expiry timer. Callers still queued stay
// queued until their context ends.
func (w *Window) Close() {
	w.closeOnce.Do(func() {
		close(w.stop)
		w.mu.Lock()
		w.closed = true
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
}

// sweep periodically prunes expired timestamps and admits queued callers.
func (w *Window) sweep() {
	ticker := time.NewTicker(w.window)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			w.flushLocked(w.now())
			w.mu.Unlock()
		}
	}
}

// pruneLocked drops timestamps that are no longer newer than now-window.
func (w *Window) pruneLocked(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// flushLocked admits queued callers in FIFO order while capacity exists.
func (w *Window) flushLocked(now time.Time) {
	w.pruneLocked(now)

	for len(w.waiters) > 0 && len(w.stamps) < w.max {
		wt := w.waiters[0]
		w.waiters[0] = nil
		w.waiters = w.waiters[1:]

		w.stamps = append(w.stamps, now)
		wt.admitted = true
		close(wt.ready)
	}

	rateLimitQueueDepth.WithLabelValues(w.partition, w.label).Set(float64(len(w.waiters)))
	w.armLocked(now)
}

// armLocked schedules a flush for the moment the oldest timestamp leaves the
// window, so waiters are released without waiting for the next sweep.
func (w *Window) armLocked(now time.Time) {
	if w.closed || len(w.waiters) == 0 || len(w.stamps) == 0 {
		return
	}

	delay := w.stamps[0].Add(w.window).Sub(now)
	if delay < minRearm {
		delay = minRearm
	}

	if w.timer == nil {
		w.timer = time.AfterFunc(delay, func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.flushLocked(w.now())
		})
		return
	}
	w.timer.Reset(delay)
}

// removeLocked drops a cancelled waiter, keeping the order of the rest.
func (w *Window) removeLocked(target *waiter) {
	for i, wt := range w.waiters {
		if wt == target {
			w.waiters = append(w.waiters[:i], w.waiters[i+1:]...)
			return
		}
	}
}

// queued reports the number of waiting callers.
func (w *Window) queued() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiters)
}
