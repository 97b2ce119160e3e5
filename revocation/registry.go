// Package revocation tracks blacklisted tokens and per-user active-token
// sets so sessions can be killed before their natural expiry.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketmosaic/authcore/store"
	"github.com/marketmosaic/authcore/token"
)

const (
	blacklistKeyPrefix = "bl:"
	userTokenKeyPrefix = "ut:"
)

// Config holds revocation horizons for a [Registry].
type Config struct {
	// TTL is the default blacklist-entry horizon.
	TTL time.Duration
	// SweepInterval is the cadence of the background sweep started by Run.
	SweepInterval time.Duration
}

// Registry is the revocation store. Lookups evict stale entries lazily;
// a background sweep reclaims the rest. A blacklist entry never expires
// before the token it revokes, so a revoked-but-unexpired token can never
// be treated as valid again.
type Registry struct {
	store  store.TTLStore
	config Config
	log    *logrus.Logger
	now    func() time.Time
}

// NewRegistry creates a registry over the given store.
func NewRegistry(st store.TTLStore, cfg Config, log *logrus.Logger) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if log == nil {
		log = logrus.New()
	}
	return &Registry{store: st, config: cfg, log: log, now: time.Now}
}

// blacklistKey hashes the token so the store never holds raw credentials
// and key sizes stay bounded.
func blacklistKey(tokenStr string) string {
	sum := sha256.Sum256([]byte(tokenStr))
	return blacklistKeyPrefix + hex.EncodeToString(sum[:])
}

func userTokenKey(username string) string { return userTokenKeyPrefix + username }

// Blacklist revokes a single token. The owner, when known, also has the
// token dropped from their active-token index. The eviction instant is the
// later of the configured horizon and the token's own expiry, read as an
// unverified hint; extending an entry's life on attacker-supplied data is
// harmless, shortening it would not be.
func (r *Registry) Blacklist(ctx context.Context, tokenStr, owner string) error {
	eviction := r.now().Add(r.config.TTL)
	if exp, ok := token.ExpiryHint(tokenStr); ok && exp.After(eviction) {
		eviction = exp
	}

	ttl := eviction.Sub(r.now())
	value := strconv.FormatInt(eviction.Unix(), 10)
	if err := r.store.Set(ctx, blacklistKey(tokenStr), value, ttl); err != nil {
		return err
	}

	if owner != "" {
		if err := r.store.RemoveSetMember(ctx, userTokenKey(owner), tokenStr); err != nil {
			r.log.WithError(err).WithField("username", owner).
				Warn("revocation: token not removed from user index")
		}
	}
	return nil
}

// IsBlacklisted reports whether the token has an unexpired revocation
// entry. Expired entries read as absent.
func (r *Registry) IsBlacklisted(ctx context.Context, tokenStr string) (bool, error) {
	_, ok, err := r.store.Get(ctx, blacklistKey(tokenStr))
	if err != nil {
		return false, err
	}
	return ok, nil
}

// StoreUserToken adds a token to the user's active-token index, used only
// to support logout-all. Idempotent; the index entry expires with the
// token itself.
func (r *Registry) StoreUserToken(ctx context.Context, username, tokenStr string, ttl time.Duration) error {
	return r.store.AddSetMember(ctx, userTokenKey(username), tokenStr, ttl)
}

// InvalidateAllForUser blacklists every token currently indexed for
// username and drops the index entry.
func (r *Registry) InvalidateAllForUser(ctx context.Context, username string) error {
	tokens, err := r.store.SetMembers(ctx, userTokenKey(username))
	if err != nil {
		return err
	}
	for _, tokenStr := range tokens {
		if err := r.Blacklist(ctx, tokenStr, ""); err != nil {
			return err
		}
	}
	return r.store.Delete(ctx, userTokenKey(username))
}

// UserTokens returns a snapshot copy of the tokens currently indexed for
// username, never a live view.
func (r *Registry) UserTokens(ctx context.Context, username string) ([]string, error) {
	return r.store.SetMembers(ctx, userTokenKey(username))
}

// Run drives the periodic sweep until ctx is cancelled. The sweep only
// reclaims entries whose eviction instant has already passed; removing a
// stale entry late is tolerable, removing a live one never is. It shares
// no locks with the foreground blacklist/lookup path beyond the store's
// own per-shard or per-connection synchronization.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Purge(ctx); err != nil && ctx.Err() == nil {
				r.log.WithError(err).Warn("revocation: sweep failed")
			}
		}
	}
}
