package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meertime/dataportal/internal/telemetry"
)

const noRoute = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds.
// The path label is the matched route template (c.FullPath()), so
// /api/v1/download/pulsar/:pulsar/:file_type is one series however many pulsars are
// requested. Unmatched requests share the "<no-route>" label.
//
// Archive downloads are observed when the stream finishes, so their durations
// include the transfer.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRoute
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
