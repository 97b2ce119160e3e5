package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// minKeyBytes is the smallest signing key accepted for HMAC-SHA256.
const minKeyBytes = 32

const (
	audSession = "session"
	audReset   = "password_reset"
)

var (
	// ErrMalformed indicates the token is structurally invalid.
	ErrMalformed = errors.New("malformed token")
	// ErrSignature indicates the token signature does not match.
	ErrSignature = errors.New("invalid token signature")
	// ErrExpired indicates the token expiry has passed.
	ErrExpired = errors.New("token expired")
)

// Config holds signing parameters for an [Authority].
//
// Config instances are intended to be configured during initialization and
// then treated as immutable.
type Config struct {
	SecretKey []byte
	TTL       time.Duration
	ResetTTL  time.Duration
	Issuer    string
	Leeway    time.Duration
}

// Claims is the fixed payload embedded in every issued token. Extra is the
// single forward-compatibility extension field; everything else is a named
// claim with compile-time safety.
type Claims struct {
	UserID string            `json:"userId,omitempty"`
	Email  string            `json:"email,omitempty"`
	Name   string            `json:"name,omitempty"`
	Role   string            `json:"role,omitempty"`
	Extra  map[string]string `json:"ext,omitempty"`
	jwt.RegisteredClaims
}

// Authority issues and verifies HMAC-SHA256 signed tokens. It is pure and
// stateless beyond the signing key loaded at construction, so a single
// instance is safe for arbitrarily many concurrent callers.
type Authority struct {
	config Config
}

// NewAuthority validates cfg and returns a ready Authority. A missing or
// short signing key is a construction error: callers are expected to treat
// it as fatal at startup, never as a runtime condition.
func NewAuthority(cfg Config) (*Authority, error) {
	if len(cfg.SecretKey) < minKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes", minKeyBytes)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = 24 * time.Hour
	}
	return &Authority{config: cfg}, nil
}

// Issue signs a session token for subject with the given claims. It stamps
// iat, exp, and a unique jti; the input claims are not mutated.
func (a *Authority) Issue(subject string, claims Claims) (string, error) {
	return a.sign(subject, claims, audSession, a.config.TTL)
}

// IssueReset signs a short-lived password-reset token for subject. Reset
// tokens carry a distinct audience so they can never pass session
// verification, and vice versa.
func (a *Authority) IssueReset(subject string) (string, error) {
	return a.sign(subject, Claims{}, audReset, a.config.ResetTTL)
}

func (a *Authority) sign(subject string, claims Claims, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.Subject = subject
	claims.ID = uuid.NewString()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.Audience = jwt.ClaimStrings{audience}
	if a.config.Issuer != "" {
		claims.Issuer = a.config.Issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.config.SecretKey)
}

// Verify parses and verifies a session token. It fails with [ErrMalformed],
// [ErrSignature], or [ErrExpired] and never returns claims from a payload
// whose signature has not been checked.
func (a *Authority) Verify(tokenStr string) (*Claims, error) {
	return a.parse(tokenStr, audSession)
}

// VerifyReset parses and verifies a password-reset token.
func (a *Authority) VerifyReset(tokenStr string) (*Claims, error) {
	return a.parse(tokenStr, audReset)
}

func (a *Authority) parse(tokenStr, audience string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(audience),
	}
	if a.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(a.config.Leeway))
	}
	if a.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(a.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.config.SecretKey, nil
	})
	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformed
	}
	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrSignature
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		// Audience/issuer mismatches and any claim-shape problem collapse
		// into the structural bucket.
		return ErrMalformed
	}
}

// Peek decodes the claims of a token without verifying its signature or
// expiry. The result must never be trusted for authorization; it exists so
// revocation can learn a token's owner and natural expiry as hints.
func Peek(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser()
	claims := &Claims{}
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, ErrMalformed
	}
	return claims, nil
}

// ExpiryHint reports the unverified exp of a token. The zero time with
// ok=false means the token carries no readable expiry.
func ExpiryHint(tokenStr string) (time.Time, bool) {
	claims, err := Peek(tokenStr)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// FromBearer extracts the opaque token string from an HTTP Authorization
// header value. It fails with [ErrMalformed] when the header does not use
// the Bearer scheme.
func FromBearer(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMalformed
	}
	tokenStr := strings.TrimSpace(header[len(prefix):])
	if tokenStr == "" {
		return "", ErrMalformed
	}
	return tokenStr, nil
}
