package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meertime/dataportal/internal/audit"
	"github.com/meertime/dataportal/internal/safego"
)

// auditActions names the state-changing routes. Unlisted mutations are recorded
// as "<METHOD> <route>".
var auditActions = map[string]string{
	"PATCH /api/v1/projects/:code":                                "project.embargo_updated",
	"POST /api/v1/projects/:code/membership-requests":             "membership.requested",
	"POST /api/v1/projects/:code/membership-requests/:id/approve": "membership.approved",
	"POST /api/v1/projects/:code/membership-requests/:id/reject":  "membership.rejected",
	"DELETE /api/v1/projects/:code/memberships/me":                "membership.left",
}

// AuditMiddleware ships a record of every state-changing request after it has been
// handled. Reads are never recorded; failed mutations only when logFailed is set.
// Shipping happens off the request path.
func AuditMiddleware(shipper audit.Shipper, logFailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		status := c.Writer.Status()
		if status >= 400 && !logFailed {
			return
		}

		route := c.Request.Method + " " + c.FullPath()
		action, ok := auditActions[route]
		if !ok {
			action = route
		}

		p := PrincipalFrom(c)
		entry := &audit.LogEntry{
			Timestamp:  time.Now().UTC(),
			Action:     action,
			UserID:     p.UserID(),
			Username:   p.Username(),
			Project:    c.Param("code"),
			ResourceID: c.Param("id"),
			IPAddress:  c.ClientIP(),
			RequestID:  RequestIDFrom(c),
			StatusCode: status,
		}

		safego.Go("audit-ship", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shipper.Ship(ctx, entry); err != nil {
				slog.Error("failed to ship audit entry", "action", entry.Action, "error", err)
			}
		})
	}
}
