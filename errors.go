package authcore

import (
	"errors"
	"fmt"
	"time"

	"github.com/marketmosaic/authcore/token"
)

var (
	// ErrMalformedToken indicates a structurally invalid token.
	ErrMalformedToken = token.ErrMalformed
	// ErrInvalidSignature indicates a token whose signature does not match.
	ErrInvalidSignature = token.ErrSignature
	// ErrExpiredToken indicates a token past its expiry.
	ErrExpiredToken = token.ErrExpired
	// ErrRevokedToken indicates a token revoked before its natural expiry.
	ErrRevokedToken = errors.New("token revoked")
	// ErrAccountLocked indicates the account is inside a lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidCredentials indicates a failed credential check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound indicates the user directory has no such account.
	ErrUserNotFound = errors.New("user not found")
	// ErrRateLimitExceeded rejects a single operation, never the account.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrUpstreamUnavailable indicates a collaborator (user directory or
	// shared store) could not answer in time. Authentication fails closed,
	// but callers can tell it apart from a permanent denial and retry.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNotReady indicates the facade was not built with its required
	// collaborators.
	ErrNotReady = errors.New("facade not initialized")
)

// AccountLockedError carries the end of the lockout window for user-facing
// messaging. It unwraps to [ErrAccountLocked].
type AccountLockedError struct {
	Until time.Time
}

func (e *AccountLockedError) Error() string {
	if e.Until.IsZero() {
		return ErrAccountLocked.Error()
	}
	return fmt.Sprintf("account locked, try again in %s", e.Remaining().Round(time.Second))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// Remaining reports how long the lockout still has to run.
func (e *AccountLockedError) Remaining() time.Duration {
	if e.Until.IsZero() {
		return 0
	}
	remaining := time.Until(e.Until)
	if remaining < 0 {
		return 0
	}
	return remaining
}
