package authcore

import (
	"context"
	"errors"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/marketmosaic/authcore/attempt"
	"github.com/marketmosaic/authcore/audit"
	"github.com/marketmosaic/authcore/ratelimit"
	"github.com/marketmosaic/authcore/revocation"
	"github.com/marketmosaic/authcore/store"
	"github.com/marketmosaic/authcore/token"
)

// Builder assembles a [Facade] from configuration and collaborators.
type Builder struct {
	config    Config
	store     store.TTLStore
	directory UserDirectory
	sink      audit.Sink
	logger    *logrus.Logger

	configSet bool
}

// New creates a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration. Zero-valued sections fall
// back to defaults at build time only for the audit dispatcher; everything
// else is validated as given.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	b.configSet = true
	return b
}

// WithSecretKey sets the signing key material without replacing the rest
// of the default configuration.
func (b *Builder) WithSecretKey(key []byte) *Builder {
	b.config.Token.SecretKey = key
	return b
}

// WithRedis backs the revocation registry and attempt guard with a shared
// Redis deployment, making the store the source of truth across instances.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.store = store.NewRedis(client, "ac")
	return b
}

// WithStore injects an explicit TTL store, overriding WithRedis.
func (b *Builder) WithStore(st store.TTLStore) *Builder {
	b.store = st
	return b
}

// WithUserDirectory injects the identity collaborator. Required.
func (b *Builder) WithUserDirectory(d UserDirectory) *Builder {
	b.directory = d
	return b
}

// WithAuditSink injects the audit destination and enables auditing.
// Events are dispatched asynchronously; a nil sink with auditing enabled
// discards events.
func (b *Builder) WithAuditSink(s audit.Sink) *Builder {
	b.sink = s
	if s != nil {
		b.config.Audit.Enabled = true
	}
	return b
}

// WithLogger injects the logger used for contained guard and sweep
// failures. Defaults to a discarding logger.
func (b *Builder) WithLogger(l *logrus.Logger) *Builder {
	b.logger = l
	return b
}

// Build validates configuration and collaborators and returns a running
// facade. The revocation sweeper and rate-limit janitor are started here
// and stopped by [Facade.Close].
func (b *Builder) Build() (*Facade, error) {
	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("user directory is required")
	}

	logger := b.logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	authority, err := token.NewAuthority(token.Config{
		SecretKey: b.config.Token.SecretKey,
		TTL:       b.config.Token.TTL,
		ResetTTL:  b.config.Token.ResetTTL,
		Issuer:    b.config.Token.Issuer,
		Leeway:    b.config.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	st := b.store
	if st == nil {
		st = store.NewMemory()
	}

	registry := revocation.NewRegistry(st, revocation.Config{
		TTL:           b.config.Revocation.TTL,
		SweepInterval: b.config.Revocation.SweepInterval,
	}, logger)

	guard := attempt.NewGuard(st, attempt.Config{
		MaxAttempts: b.config.Lockout.MaxAttempts,
		Duration:    b.config.Lockout.Duration,
		FailOpen:    b.config.Lockout.FailOpen,
	}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	limiter := ratelimit.New()

	f := &Facade{
		config:     b.config,
		authority:  authority,
		registry:   registry,
		guard:      guard,
		limiter:    limiter,
		directory:  b.directory,
		dispatcher: audit.NewDispatcher(b.config.Audit, b.sink),
		log:        logger,
		cancel:     cancel,
	}

	go registry.Run(ctx)
	go limiter.Run(ctx, b.config.RateLimit.Window)

	return f, nil
}
