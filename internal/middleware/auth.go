// Package middleware provides Gin HTTP middleware for authentication, rate
// limiting, security headers, request logging and metrics.
//
// Middleware ordering is enforced in router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → CORS → RateLimit → Auth → Audit → Handler
//
// Rate limiting runs before auth so brute-force login attempts are rejected
// before any credential work. Auth resolves the bearer token to a
// tenant.Principal; Audit reads that principal after the handler ran.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orgspace/orgspace/internal/auth"
	"github.com/orgspace/orgspace/internal/tenant"
)

// PrincipalKey is the gin.Context key holding the authenticated *tenant.Principal.
const PrincipalKey = "principal"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Authorizer resolves token claims against the registry.
type Authorizer interface {
	Authorize(ctx context.Context, adminID, orgName string) (*tenant.Principal, error)
}

// AuthMiddleware requires a valid bearer token whose organization still exists
// and is still administered by the token's admin.
func AuthMiddleware(tokens TokenValidator, authz Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed authorization header",
			})
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		principal, err := authz.Authorize(c.Request.Context(), claims.AdminID, claims.OrgName)
		if err != nil {
			if errors.Is(err, tenant.ErrUnauthorized) {
				c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid or expired token",
				})
				return
			}
			slog.Error("failed to authorize token", "admin_id", claims.AdminID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
			})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// bearerToken extracts the token from an "Authorization: Bearer <token>" header.
// The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetPrincipal returns the principal set by AuthMiddleware.
func GetPrincipal(c *gin.Context) (*tenant.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*tenant.Principal)
	return p, ok && p != nil
}
