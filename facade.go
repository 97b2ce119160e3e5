package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/marketmosaic/authcore/attempt"
	"github.com/marketmosaic/authcore/audit"
	"github.com/marketmosaic/authcore/ratelimit"
	"github.com/marketmosaic/authcore/revocation"
	"github.com/marketmosaic/authcore/token"
)

// Facade orchestrates the token authority, revocation registry, attempt
// guard, rate limiter, and the external user directory behind the
// login/logout/validate surface. Build one with [Builder]; a single
// instance serves arbitrarily many concurrent callers.
type Facade struct {
	config     Config
	authority  *token.Authority
	registry   *revocation.Registry
	guard      *attempt.Guard
	limiter    *ratelimit.Limiter
	directory  UserDirectory
	dispatcher *audit.Dispatcher
	log        *logrus.Logger
	cancel     context.CancelFunc
}

// Login authenticates username/password and returns a signed session
// token. Lockout is checked before the credential ever reaches the
// directory; failures feed the attempt guard. A directory outage or
// timeout fails closed with [ErrUpstreamUnavailable].
func (f *Facade) Login(ctx context.Context, username, password string) (string, error) {
	if f == nil || f.directory == nil {
		return "", ErrNotReady
	}
	if username == "" || password == "" {
		return "", ErrInvalidCredentials
	}

	ip := clientIPFromContext(ctx)
	if f.config.RateLimit.ThrottleLoginByIP && ip != "" {
		if !f.limiter.Allow("login:"+ip, f.config.RateLimit.MaxRequests, f.config.RateLimit.Window) {
			f.emit(ctx, audit.EventLoginRateLimited, username, "", false, ErrRateLimitExceeded, nil)
			return "", ErrRateLimitExceeded
		}
	}

	locked, err := f.guard.IsLocked(ctx, username)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if locked {
		until, _ := f.guard.LockoutTime(ctx, username)
		lockErr := &AccountLockedError{Until: until}
		f.emit(ctx, audit.EventLoginLocked, username, "", false, lockErr, nil)
		return "", lockErr
	}

	user, err := f.lookup(ctx, username)
	switch {
	case errors.Is(err, ErrUserNotFound):
		// Unknown accounts count toward the throttle and stay
		// indistinguishable from a wrong password.
		f.guard.RecordFailure(ctx, username)
		f.emit(ctx, audit.EventLoginFailure, username, "", false, ErrInvalidCredentials, map[string]string{"reason": "user_not_found"})
		return "", ErrInvalidCredentials
	case err != nil:
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		f.guard.RecordFailure(ctx, username)
		f.emit(ctx, audit.EventLoginFailure, username, user.ID, false, ErrInvalidCredentials, map[string]string{"reason": "password_mismatch"})
		return "", ErrInvalidCredentials
	}

	f.guard.RecordSuccess(ctx, username)

	tokenStr, err := f.authority.Issue(username, token.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   user.Role,
	})
	if err != nil {
		return "", err
	}

	// If the token cannot be indexed, logout-all would silently miss it.
	// Withhold it instead of handing out an unrevocable session.
	if err := f.registry.StoreUserToken(ctx, username, tokenStr, f.config.Token.TTL); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	f.emit(ctx, audit.EventLoginSuccess, username, user.ID, true, nil, nil)
	return tokenStr, nil
}

// Validate checks a presented token against the revocation registry and
// the token authority, returning its claims when the token is live. The
// failure is always typed: malformed, bad signature, expired, revoked, or
// upstream outage.
func (f *Facade) Validate(ctx context.Context, tokenStr string) (*token.Claims, error) {
	if f == nil || f.authority == nil {
		return nil, ErrNotReady
	}
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrMalformedToken
	}

	revoked, err := f.registry.IsBlacklisted(ctx, tokenStr)
	if err != nil {
		// Cannot prove the token was not revoked; fail closed.
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if revoked {
		return nil, ErrRevokedToken
	}

	return f.authority.Verify(tokenStr)
}

// Logout revokes the presented token. The token need not verify: an
// expired or even mangled credential is still blacklisted so it can never
// come back. Transport-side session state is the caller's to clear.
func (f *Facade) Logout(ctx context.Context, tokenStr string) error {
	if f == nil || f.registry == nil {
		return ErrNotReady
	}
	if strings.TrimSpace(tokenStr) == "" {
		return ErrMalformedToken
	}

	owner := ""
	if claims, err := token.Peek(tokenStr); err == nil {
		owner = claims.Subject
	}
	if err := f.registry.Blacklist(ctx, tokenStr, owner); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	f.emit(ctx, audit.EventLogout, owner, "", true, nil, nil)
	return nil
}

// LogoutAll revokes every tracked session for username.
func (f *Facade) LogoutAll(ctx context.Context, username string) error {
	if f == nil || f.registry == nil {
		return ErrNotReady
	}
	if err := f.registry.InvalidateAllForUser(ctx, username); err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	f.emit(ctx, audit.EventLogoutAll, username, "", true, nil, nil)
	return nil
}

// RequestPasswordReset looks up the account and issues a signed reset
// token. Delivering it to the user is the mail collaborator's problem;
// the core only mints the credential.
func (f *Facade) RequestPasswordReset(ctx context.Context, username string) (string, error) {
	if f == nil || f.directory == nil {
		return "", ErrNotReady
	}
	user, err := f.lookup(ctx, username)
	if err != nil {
		return "", err
	}
	return f.authority.IssueReset(user.Username)
}

// CompletePasswordReset verifies a reset token and, on success, clears the
// account's attempt state and kills every live session, so a compromised
// account's sessions die with the old password. Returns the username the
// reset was confirmed for; the caller persists the new password hash.
func (f *Facade) CompletePasswordReset(ctx context.Context, resetToken string) (string, error) {
	if f == nil || f.registry == nil {
		return "", ErrNotReady
	}
	used, err := f.registry.IsBlacklisted(ctx, resetToken)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if used {
		return "", ErrRevokedToken
	}

	claims, err := f.authority.VerifyReset(resetToken)
	if err != nil {
		return "", err
	}

	username := claims.Subject
	f.guard.Clear(ctx, username)
	if err := f.registry.InvalidateAllForUser(ctx, username); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	// The reset token is single-use.
	if err := f.registry.Blacklist(ctx, resetToken, ""); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	f.emit(ctx, audit.EventPasswordReset, username, claims.UserID, true, nil, nil)
	return username, nil
}

// Allow applies the configured default rate budget to key. Callers key by
// whatever dimension they throttle: identity, IP, route.
func (f *Facade) Allow(key string) bool {
	return f.limiter.Allow(key, f.config.RateLimit.MaxRequests, f.config.RateLimit.Window)
}

// Limiter exposes the underlying rate limiter for callers that need
// per-call budgets.
func (f *Facade) Limiter() *ratelimit.Limiter {
	return f.limiter
}

// UserTokens returns a snapshot of the tokens currently tracked for
// username.
func (f *Facade) UserTokens(ctx context.Context, username string) ([]string, error) {
	return f.registry.UserTokens(ctx, username)
}

// Close stops the background sweeper and janitor and drains the audit
// dispatcher.
func (f *Facade) Close() {
	if f == nil {
		return
	}
	if f.cancel != nil {
		f.cancel()
	}
	f.dispatcher.Close()
}

// ExtractBearer pulls the opaque token string out of an Authorization
// header value.
func ExtractBearer(header string) (string, error) {
	return token.FromBearer(header)
}

func (f *Facade) lookup(ctx context.Context, username string) (UserRecord, error) {
	dctx, cancel := context.WithTimeout(ctx, f.config.DirectoryTimeout)
	defer cancel()

	user, err := f.directory.Lookup(dctx, username)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, ErrUserNotFound):
		return UserRecord{}, ErrUserNotFound
	default:
		return UserRecord{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
}

func (f *Facade) emit(ctx context.Context, eventType, username, userID string, success bool, cause error, metadata map[string]string) {
	if f.dispatcher == nil {
		return
	}
	event := audit.Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Username:  username,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	f.dispatcher.Emit(ctx, event)
}
