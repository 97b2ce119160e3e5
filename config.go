package authcore

import (
	"errors"
	"time"

	"github.com/marketmosaic/authcore/audit"
)

// Config is the full configuration surface of the authentication core.
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	Token      TokenConfig
	Revocation RevocationConfig
	Lockout    LockoutConfig
	RateLimit  RateLimitConfig
	Audit      AuditConfig

	// DirectoryTimeout bounds every call to the user directory. On
	// timeout the login fails closed with ErrUpstreamUnavailable.
	DirectoryTimeout time.Duration
}

// TokenConfig holds signing key material and token lifetimes. SecretKey is
// loaded once at startup from whatever secret store backs the deployment;
// its absence is a build error, never a runtime condition.
type TokenConfig struct {
	SecretKey []byte
	TTL       time.Duration
	ResetTTL  time.Duration
	Issuer    string
	Leeway    time.Duration
}

// RevocationConfig holds the blacklist-entry horizon and sweep cadence.
type RevocationConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// LockoutConfig holds failed-login throttling parameters.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
	// FailOpen allows login attempts through when the attempt store is
	// unreachable. Off by default: an unreachable store denies logins
	// with ErrUpstreamUnavailable rather than silently dropping the
	// lockout guarantee.
	FailOpen bool
}

// RateLimitConfig holds the default admission budget used by
// [Facade.Allow] and, when ThrottleLoginByIP is set, by login itself for
// callers that attach a client IP via [WithClientIP].
type RateLimitConfig struct {
	MaxRequests       int
	Window            time.Duration
	ThrottleLoginByIP bool
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig = audit.Config

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL:      time.Hour,
			ResetTTL: 24 * time.Hour,
		},
		Revocation: RevocationConfig{
			TTL:           24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    30 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			MaxRequests: 100,
			Window:      time.Minute,
		},
		DirectoryTimeout: 5 * time.Second,
	}
}

func validateConfig(cfg Config) error {
	if cfg.Token.TTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if cfg.Revocation.TTL <= 0 || cfg.Revocation.SweepInterval <= 0 {
		return errors.New("revocation TTL and sweep interval must be positive")
	}
	if cfg.Lockout.MaxAttempts <= 0 || cfg.Lockout.Duration <= 0 {
		return errors.New("lockout threshold and duration must be positive")
	}
	if cfg.RateLimit.MaxRequests <= 0 || cfg.RateLimit.Window <= 0 {
		return errors.New("rate limit budget and window must be positive")
	}
	if cfg.DirectoryTimeout <= 0 {
		return errors.New("directory timeout must be positive")
	}
	return nil
}
