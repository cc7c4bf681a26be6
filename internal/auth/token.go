// Package auth implements the token service: it issues and validates the signed,
// stateless session tokens that bind an admin to an organization.
//
// Validation is signature plus expiry only. It never consults the organization
// registry, so callers that need current identity must re-resolve it themselves
// (see tenant.Manager.Authorize).
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultIssuer is used when no issuer is configured.
const DefaultIssuer = "orgspace"

// minSecretLength is the recommended minimum HMAC secret length.
const minSecretLength = 32

var (
	// ErrInvalidToken is returned for any token that fails validation: bad
	// signature, malformed structure, wrong algorithm, missing claims or expiry.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingSecret is returned outside dev mode when no secret is configured.
	ErrMissingSecret = errors.New("SECURITY ERROR: a JWT secret is required in production. " +
		"Set ORGSPACE_AUTH_JWT_SECRET or JWT_SECRET (generate one with: openssl rand -hex 32)")
)

// Claims is the token payload.
type Claims struct {
	AdminID string `json:"admin_id"`
	OrgName string `json:"org"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies session tokens with a process-wide HMAC secret.
type TokenService struct {
	secret []byte
	method *jwt.SigningMethodHMAC
	issuer string
	now    func() time.Time
}

// Option customizes a TokenService.
type Option func(*TokenService)

// WithIssuer sets the iss claim written and required by the service.
func WithIssuer(issuer string) Option {
	return func(s *TokenService) { s.issuer = issuer }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *TokenService) { s.now = now }
}

// NewTokenService creates a TokenService. algorithm is HS256, HS384 or HS512;
// an empty string selects HS256.
func NewTokenService(secret, algorithm string, opts ...Option) (*TokenService, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	method, err := signingMethod(algorithm)
	if err != nil {
		return nil, err
	}
	s := &TokenService{
		secret: []byte(secret),
		method: method,
		issuer: DefaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func signingMethod(algorithm string) (*jwt.SigningMethodHMAC, error) {
	switch algorithm {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
}

// Algorithm returns the signing algorithm name.
func (s *TokenService) Algorithm() string { return s.method.Alg() }

// Issue signs a token for adminID bound to orgName that expires ttl from now.
// A ttl of zero or less yields a token that is already expired.
func (s *TokenService) Issue(adminID, orgName string, ttl time.Duration) (string, error) {
	if adminID == "" || orgName == "" {
		return "", errors.New("admin id and organization name are required")
	}
	now := s.now()
	if ttl < 0 {
		ttl = 0
	}

	claims := &Claims{
		AdminID: adminID,
		OrgName: orgName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   adminID,
		},
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and returns its claims. Every failure wraps
// ErrInvalidToken; expiry additionally wraps jwt.ErrTokenExpired.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.AdminID == "" || claims.OrgName == "" {
		return nil, fmt.Errorf("%w: missing admin or organization claim", ErrInvalidToken)
	}
	return claims, nil
}

// IsExpired reports whether err came from an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}

// isDevMode checks the environment for development indicators.
func isDevMode() bool {
	devMode := os.Getenv("DEV_MODE")
	return devMode == "true" || devMode == "1" ||
		os.Getenv("NODE_ENV") == "development" ||
		os.Getenv("GIN_MODE") == "debug"
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ResolveSecret returns the configured secret, or in dev mode a random one.
// Outside dev mode a missing secret is fatal. Call this once at startup.
func ResolveSecret(configured string) (string, error) {
	if configured == "" {
		if !isDevMode() {
			return "", ErrMissingSecret
		}
		secret, err := generateRandomSecret()
		if err != nil {
			return "", err
		}
		slog.Warn("JWT secret not set; using auto-generated secret for development. Sessions will not survive a restart.")
		return secret, nil
	}
	if len(configured) < minSecretLength {
		slog.Warn("JWT secret is shorter than recommended", "min_length", minSecretLength)
	}
	return configured, nil
}
