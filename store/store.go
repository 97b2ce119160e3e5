// Package store provides the TTL-governed key-value capability backing the
// stateful authentication components. Two implementations ship with the
// module: an in-process sharded map for single-instance deployments and
// tests, and a Redis-backed store for multi-instance production where the
// shared store is the source of truth.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable indicates the backing store could not be reached. Callers
// decide whether to fail open or closed; the store only reports.
var ErrUnavailable = errors.New("ttl store unavailable")

// TTLStore is the narrow storage capability required by the revocation
// registry and the login attempt guard. Every record carries a TTL so that
// absence of an explicit delete never requires external intervention to
// reclaim memory.
//
// Set members expire independently of each other; a set disappears once its
// last member does.
type TTLStore interface {
	// Get returns the value for key, reporting presence. Expired entries
	// are treated as absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key with the given TTL, replacing any
	// previous entry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrementWithTTL atomically increments the counter at key and
	// returns the post-increment value. The TTL is applied when the
	// increment creates the counter; later increments leave the original
	// expiry in place, so the counter self-expires on schedule.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// AddSetMember adds member to the set at key with its own TTL.
	// Re-adding an existing member refreshes that member's expiry only.
	AddSetMember(ctx context.Context, key, member string, ttl time.Duration) error

	// RemoveSetMember removes member from the set at key.
	RemoveSetMember(ctx context.Context, key, member string) error

	// SetMembers returns a snapshot of the unexpired members of the set
	// at key. The returned slice is a copy, never a live view.
	SetMembers(ctx context.Context, key string) ([]string, error)

	// Purge removes expired entries and expired set members eagerly.
	// It must never remove an entry that is still within its TTL.
	Purge(ctx context.Context) error
}
