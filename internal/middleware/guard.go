package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequirePrincipal rejects anonymous requests with 401
func RequirePrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		if PrincipalFrom(c).IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
}

// RequireSuperuser rejects anonymous requests with 401 and non-superusers with 403
func RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := PrincipalFrom(c)
		if p.IsAnonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if !p.IsSuperuser() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Superuser access required"})
			return
		}
		c.Next()
	}
}
