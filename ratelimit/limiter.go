// Package ratelimit bounds operation counts per arbitrary key within a
// trailing time window.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is an exact sliding-window rate limiter. Each key owns an
// independent window guarded by its own mutex, so contention on one key
// never blocks admission decisions for another; the key table itself is a
// lock-free sync.Map.
type Limiter struct {
	windows sync.Map // key -> *window
	now     func() time.Time
}

type window struct {
	mu     sync.Mutex
	stamps []time.Time
	// span is the window duration of the most recent admission decision,
	// kept so the janitor can tell live keys from abandoned ones.
	span time.Duration
	// dead marks a window the janitor has evicted; a caller that raced
	// the eviction must restart with a fresh window.
	dead bool
}

// New creates an empty limiter.
func New() *Limiter {
	return &Limiter{now: time.Now}
}

// Allow purges timestamps older than windowDuration for key, then admits
// and records the request unless maxRequests are already inside the
// window. Denied requests are not recorded. The purge-count-record step is
// atomic per key: concurrent callers cannot jointly exceed maxRequests.
func (l *Limiter) Allow(key string, maxRequests int, windowDuration time.Duration) bool {
	if maxRequests <= 0 {
		return false
	}

	var w *window
	for {
		value, _ := l.windows.LoadOrStore(key, &window{})
		w = value.(*window)
		w.mu.Lock()
		if !w.dead {
			break
		}
		w.mu.Unlock()
	}
	defer w.mu.Unlock()

	now := l.now()
	w.span = windowDuration
	w.prune(now.Add(-windowDuration))

	if len(w.stamps) >= maxRequests {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

// prune drops timestamps at or before cutoff. Stamps are appended in
// order, so the live suffix is contiguous. Caller must hold w.mu.
func (w *window) prune(cutoff time.Time) {
	idx := 0
	for idx < len(w.stamps) && !w.stamps[idx].After(cutoff) {
		idx++
	}
	if idx > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[idx:]...)
	}
}

// Clear drops all state for key.
func (l *Limiter) Clear(key string) {
	value, ok := l.windows.Load(key)
	if !ok {
		return
	}
	w := value.(*window)
	w.mu.Lock()
	w.dead = true
	w.stamps = nil
	l.windows.Delete(key)
	w.mu.Unlock()
}

// Run evicts abandoned windows until ctx is cancelled, keeping the key
// table self-expiring for callers that key by high-cardinality values such
// as client IPs.
func (l *Limiter) Run(ctx context.Context, sweepInterval time.Duration) {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	now := l.now()
	l.windows.Range(func(key, value any) bool {
		w := value.(*window)
		w.mu.Lock()
		w.prune(now.Add(-w.span))
		if len(w.stamps) == 0 {
			w.dead = true
			l.windows.Delete(key)
		}
		w.mu.Unlock()
		return true
	})
}
