// Package middleware provides Gin HTTP middleware for principal resolution, guards,
// rate limiting, security headers and audit logging.
//
// Ordering is fixed in internal/api/router.go:
//
//	Security → Auth → RateLimit → Guard → Audit → Handler
//
// Auth runs before rate limiting so authenticated clients are limited per user
// rather than per address.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meertime/dataportal/internal/auth"
	"github.com/meertime/dataportal/internal/embargo"
)

// PrincipalKey is the gin.Context key holding the request's *embargo.Principal
const PrincipalKey = "principal"

// Authenticator resolves a bearer token to a principal
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*embargo.Principal, error)
}

// AuthMiddleware resolves the Authorization header into a principal for every
// request. A request without the header proceeds as the anonymous principal; a
// header that is present but invalid is rejected with 401 rather than silently
// downgraded.
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(PrincipalKey, embargo.Anonymous())
			c.Next()
			return
		}

		token, err := auth.ExtractBearerToken(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		principal, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired credentials"})
				return
			}
			slog.ErrorContext(c.Request.Context(), "authentication failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
			return
		}

		c.Set(PrincipalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the request's principal, or the anonymous principal if
// AuthMiddleware did not run.
func PrincipalFrom(c *gin.Context) *embargo.Principal {
	if v, ok := c.Get(PrincipalKey); ok {
		if p, ok := v.(*embargo.Principal); ok && p != nil {
			return p
		}
	}
	return embargo.Anonymous()
}
