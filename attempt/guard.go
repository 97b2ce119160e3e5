// Package attempt tracks failed-login counts and lockout windows per
// account on top of an injected TTL store.
package attempt

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketmosaic/authcore/store"
)

const (
	attemptKeyPrefix = "la:"
	lockoutKeyPrefix = "lk:"
)

// Config holds lockout tuning for a [Guard].
type Config struct {
	// MaxAttempts is the failure count that triggers a lockout.
	MaxAttempts int
	// Duration is both the lockout length and the TTL of the failure
	// counter, so abandoned counters self-expire.
	Duration time.Duration
	// FailOpen controls the answer of IsLocked when the backing store is
	// unreachable. The default (false) fails closed: the caller sees a
	// store error and denies the login attempt.
	FailOpen bool
}

// Guard enforces per-account login throttling. All check-and-update steps
// are atomic per key in the backing store, so concurrent requests cannot
// race past the lockout threshold.
type Guard struct {
	store  store.TTLStore
	config Config
	log    *logrus.Logger
	now    func() time.Time
}

// NewGuard creates a guard over the given store.
func NewGuard(st store.TTLStore, cfg Config, log *logrus.Logger) *Guard {
	if log == nil {
		log = logrus.New()
	}
	return &Guard{store: st, config: cfg, log: log, now: time.Now}
}

func attemptKey(username string) string { return attemptKeyPrefix + username }
func lockoutKey(username string) string { return lockoutKeyPrefix + username }

// RecordFailure atomically increments the failure counter for username and,
// once the count reaches the threshold, stamps the lockout window. Store
// failures are logged and swallowed: refusing a login because its failure
// could not be recorded would serve nobody.
func (g *Guard) RecordFailure(ctx context.Context, username string) {
	if username == "" {
		return
	}

	count, err := g.store.IncrementWithTTL(ctx, attemptKey(username), g.config.Duration)
	if err != nil {
		g.log.WithError(err).WithField("username", username).
			Warn("attempt guard: failure count not recorded")
		return
	}

	if count >= int64(g.config.MaxAttempts) {
		until := g.now().Add(g.config.Duration)
		if err := g.store.Set(ctx, lockoutKey(username), until.Format(time.RFC3339Nano), g.config.Duration); err != nil {
			g.log.WithError(err).WithField("username", username).
				Warn("attempt guard: lockout not recorded")
		}
	}
}

// RecordSuccess clears both the failure counter and any lockout window.
func (g *Guard) RecordSuccess(ctx context.Context, username string) {
	g.Clear(ctx, username)
}

// IsLocked reports whether username is inside a lockout window. When the
// store is unreachable the configured policy decides: fail-open answers
// "not locked" and logs, fail-closed surfaces the store error so the caller
// can deny the attempt and stay distinguishable from a real lockout.
func (g *Guard) IsLocked(ctx context.Context, username string) (bool, error) {
	until, ok, err := g.lockoutTime(ctx, username)
	if err != nil {
		if g.config.FailOpen {
			g.log.WithError(err).WithField("username", username).
				Warn("attempt guard: lockout check failed, failing open")
			return false, nil
		}
		return false, err
	}
	return ok && g.now().Before(until), nil
}

// LockoutTime returns the instant the current lockout ends. ok is false
// when no lockout is in effect.
func (g *Guard) LockoutTime(ctx context.Context, username string) (time.Time, bool) {
	until, ok, err := g.lockoutTime(ctx, username)
	if err != nil {
		g.log.WithError(err).WithField("username", username).
			Warn("attempt guard: lockout time unavailable")
		return time.Time{}, false
	}
	if !ok || !g.now().Before(until) {
		return time.Time{}, false
	}
	return until, true
}

func (g *Guard) lockoutTime(ctx context.Context, username string) (time.Time, bool, error) {
	raw, ok, err := g.store.Get(ctx, lockoutKey(username))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	until, perr := time.Parse(time.RFC3339Nano, raw)
	if perr != nil {
		// A corrupt record cannot be trusted to expire; drop it.
		_ = g.store.Delete(ctx, lockoutKey(username))
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// Clear resets all attempt state for username, used after a successful
// login or a completed password reset.
func (g *Guard) Clear(ctx context.Context, username string) {
	if username == "" {
		return
	}
	if err := g.store.Delete(ctx, attemptKey(username)); err != nil {
		g.log.WithError(err).WithField("username", username).
			Warn("attempt guard: failure counter not cleared")
	}
	if err := g.store.Delete(ctx, lockoutKey(username)); err != nil {
		g.log.WithError(err).WithField("username", username).
			Warn("attempt guard: lockout not cleared")
	}
}
