package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-jwt-secret-that-is-32-chars-!"

func newTestService(t *testing.T, opts ...Option) *TokenService {
	t.Helper()
	s, err := NewTokenService(testSecret, "HS256", opts...)
	if err != nil {
		t.Fatalf("NewTokenService() error: %v", err)
	}
	return s
}

func TestNewTokenService(t *testing.T) {
	t.Run("empty secret", func(t *testing.T) {
		if _, err := NewTokenService("", "HS256"); !errors.Is(err, ErrMissingSecret) {
			t.Errorf("error = %v, want ErrMissingSecret", err)
		}
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		if _, err := NewTokenService(testSecret, "RS256"); err == nil {
			t.Error("expected error for RS256, got nil")
		}
	})

	t.Run("empty algorithm defaults to HS256", func(t *testing.T) {
		s, err := NewTokenService(testSecret, "")
		if err != nil {
			t.Fatalf("error: %v", err)
		}
		if s.Algorithm() != "HS256" {
			t.Errorf("Algorithm() = %q, want HS256", s.Algorithm())
		}
	})
}

func TestIssueAndValidate(t *testing.T) {
	for _, alg := range []string{"HS256", "HS384", "HS512"} {
		t.Run(alg, func(t *testing.T) {
			s, err := NewTokenService(testSecret, alg)
			if err != nil {
				t.Fatalf("NewTokenService() error: %v", err)
			}

			token, err := s.Issue("admin-123", "Acme Corp", time.Hour)
			if err != nil {
				t.Fatalf("Issue() error: %v", err)
			}

			claims, err := s.Validate(token)
			if err != nil {
				t.Fatalf("Validate() error: %v", err)
			}
			if claims.AdminID != "admin-123" {
				t.Errorf("AdminID = %q, want admin-123", claims.AdminID)
			}
			if claims.OrgName != "Acme Corp" {
				t.Errorf("OrgName = %q, want Acme Corp", claims.OrgName)
			}
			if claims.Issuer != DefaultIssuer {
				t.Errorf("Issuer = %q, want %q", claims.Issuer, DefaultIssuer)
			}
			if claims.IssuedAt == nil || claims.ExpiresAt == nil {
				t.Fatal("iat and exp must both be set")
			}
			if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
				t.Errorf("exp - iat = %v, want 1h", got)
			}
		})
	}
}

func TestIssue_RequiresClaims(t *testing.T) {
	s := newTestService(t)
	if _, err := s.Issue("", "Acme", time.Hour); err == nil {
		t.Error("Issue() without admin id should fail")
	}
	if _, err := s.Issue("admin", "", time.Hour); err == nil {
		t.Error("Issue() without org name should fail")
	}
}

func TestValidate_ZeroTTLIsExpired(t *testing.T) {
	s := newTestService(t)

	token, err := s.Issue("admin-1", "Acme Corp", 0)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	_, err = s.Validate(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Validate() error = %v, want ErrInvalidToken", err)
	}
	if !IsExpired(err) {
		t.Errorf("IsExpired(%v) = false, want true", err)
	}
}

func TestValidate_ZeroTTLWithFixedClock(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestService(t, WithClock(func() time.Time { return fixed }))

	token, err := s.Issue("admin-1", "Acme Corp", 0)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if _, err := s.Validate(token); !IsExpired(err) {
		t.Errorf("Validate() at exp must be expired, got %v", err)
	}
}

func TestValidate_ExpiryFollowsClock(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newTestService(t, WithClock(func() time.Time { return now }))

	token, err := s.Issue("admin-1", "Acme Corp", time.Minute)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if _, err := s.Validate(token); err != nil {
		t.Fatalf("Validate() before expiry error: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := s.Validate(token); !IsExpired(err) {
		t.Errorf("Validate() after expiry = %v, want expired", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	s := newTestService(t)
	good, err := s.Issue("admin-1", "Acme Corp", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}

	other, _ := NewTokenService("completely-different-secret-32ch!", "HS256")
	foreign, _ := other.Issue("admin-1", "Acme Corp", time.Hour)

	hs512, _ := NewTokenService(testSecret, "HS512")
	wrongAlg, _ := hs512.Issue("admin-1", "Acme Corp", time.Hour)

	otherIssuer := newTestService(t, WithIssuer("someone-else"))
	wrongIss, _ := otherIssuer.Issue("admin-1", "Acme Corp", time.Hour)

	noOrg := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		AdminID: "admin-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    DefaultIssuer,
		},
	})
	missingOrg, _ := noOrg.SignedString([]byte(testSecret))

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		AdminID:          "admin-1",
		OrgName:          "Acme Corp",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: DefaultIssuer},
	})
	missingExp, _ := noExp.SignedString([]byte(testSecret))

	tampered := good[:len(good)-2] + "xx"

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.valid.token"},
		{"different secret", foreign},
		{"different algorithm", wrongAlg},
		{"different issuer", wrongIss},
		{"missing org claim", missingOrg},
		{"missing exp", missingExp},
		{"tampered signature", tampered},
		{"none algorithm", noneToken(t)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Validate(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Validate() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func noneToken(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		AdminID: "admin-1",
		OrgName: "Acme Corp",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Issuer:    DefaultIssuer,
		},
	})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString(none) error: %v", err)
	}
	return s
}

func TestResolveSecret(t *testing.T) {
	t.Run("configured secret is returned", func(t *testing.T) {
		got, err := ResolveSecret(testSecret)
		if err != nil || got != testSecret {
			t.Errorf("ResolveSecret() = %q, %v", got, err)
		}
	})

	t.Run("production mode requires secret", func(t *testing.T) {
		t.Setenv("DEV_MODE", "")
		t.Setenv("NODE_ENV", "")
		t.Setenv("GIN_MODE", "release")
		if _, err := ResolveSecret(""); !errors.Is(err, ErrMissingSecret) {
			t.Errorf("ResolveSecret() error = %v, want ErrMissingSecret", err)
		}
	})

	t.Run("dev mode generates random secret", func(t *testing.T) {
		t.Setenv("DEV_MODE", "true")
		a, err := ResolveSecret("")
		if err != nil {
			t.Fatalf("ResolveSecret() error: %v", err)
		}
		b, _ := ResolveSecret("")
		if len(a) != 64 || strings.Trim(a, "0123456789abcdef") != "" {
			t.Errorf("generated secret %q is not 32 hex-encoded bytes", a)
		}
		if a == b {
			t.Error("generated secrets should differ")
		}
	})
}
