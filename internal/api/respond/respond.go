// Package respond maps service errors to HTTP responses. Every handler reports
// failures through Error so that status codes and bodies stay uniform.
package respond

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meertime/dataportal/internal/services"
)

// EmbargoMessage is the body of every embargo denial. It names no project and no
// date.
const EmbargoMessage = "This data is under embargo"

// Error writes the response for err and aborts the chain
func Error(c *gin.Context, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request.Context(), "request failed",
			"method", c.Request.Method, "route", c.FullPath(), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// BadRequest writes a 400 with msg
func BadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrEmbargoDenied):
		return http.StatusForbidden, EmbargoMessage
	case errors.Is(err, services.ErrUnauthenticated):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "You do not have permission to perform this action"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
