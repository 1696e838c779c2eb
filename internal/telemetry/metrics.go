// Package telemetry provides logging setup and Prometheus metrics for the data portal.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are served
// by the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<PORTAL_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template)
//   - Access decisions made by the embargo engine, by artifact kind and outcome
//   - Archive downloads, streamed files and aborted streams
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (e.g. /api/v1/download/pulsar/:pulsar/:file_type)
// rather than the raw URL, so pulsar names and timestamps never become label values.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meertime/dataportal/internal/safego"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate:         rate(http_requests_total[5m])
//   - 403 share:            sum(rate(http_requests_total{status="403"}[5m])) / sum(rate(http_requests_total[5m]))
//   - p99 latency by route: histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Histogram of HTTP request latencies, by method and route template.",
			// Archive streams run far longer than API calls, hence the long tail.
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120, 600},
		},
		[]string{"method", "path"},
	)
)

// Access decision metrics.
//
// AccessDecisionsTotal has labels {artifact, outcome}. artifact is the artifact kind
// (observation, ephemeris, template, toa_bundle, pipeline_image, pipeline_file);
// outcome is one of public, member, superuser, denied, integrity_error.
//
// SelectorSkippedTotal counts candidates skipped by most-recent-accessible selection
// because they failed integrity checks, by artifact kind. Any increase points at bad
// rows in the database.
//
// BulkSkippedTotal counts observations and ToA bundles left out of a pulsar archive
// because they failed integrity checks.
//
// ToaBundlesDroppedTotal counts ToA bundles that passed both gates but were left out
// because the file was missing on the store (reason=missing) or the store probe
// failed (reason=store_error).
var (
	AccessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_decisions_total",
			Help: "Total number of embargo access decisions, by artifact kind and outcome.",
		},
		[]string{"artifact", "outcome"},
	)

	SelectorSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selector_skipped_candidates_total",
			Help: "Candidates skipped during most-recent-accessible selection due to data integrity errors.",
		},
		[]string{"artifact"},
	)

	BulkSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulk_skipped_artifacts_total",
			Help: "Artifacts left out of multi-observation archives due to data integrity errors.",
		},
		[]string{"artifact"},
	)

	ToaBundlesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toa_bundles_dropped_total",
			Help: "Accessible ToA bundles dropped because their file is not available, by reason.",
		},
		[]string{"reason"},
	)
)

// Download metrics.
//
// DownloadsTotal has labels {scope, file_type, outcome}; scope is observation or
// pulsar and outcome is ok, denied, not_found or error.
//
// ArchiveFilesStreamedTotal and ArchiveBytesStreamedTotal count archive members
// written to clients. ArchiveStreamsAbortedTotal counts streams stopped before
// completion (client went away or a write failed).
var (
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "downloads_total",
			Help: "Total number of download requests, by scope, file type and outcome.",
		},
		[]string{"scope", "file_type", "outcome"},
	)

	ArchiveFilesStreamedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_files_streamed_total",
			Help: "Total number of files written into download archives.",
		},
	)

	ArchiveBytesStreamedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_bytes_streamed_total",
			Help: "Total number of uncompressed bytes written into download archives.",
		},
	)

	ArchiveStreamsAbortedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "archive_streams_aborted_total",
			Help: "Total number of archive streams stopped before completion.",
		},
	)
)

// MembershipRequestsTotal counts membership workflow transitions, by action
// (requested, approved, rejected, left).
var MembershipRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "membership_events_total",
		Help: "Total number of project membership workflow events, by action.",
	},
	[]string{"action"},
)

// DBOpenConnections tracks the number of open connections held by the pool. It is
// sampled every 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every interval until ctx is done
// or the database becomes unreachable.
func StartDBStatsCollector(ctx context.Context, db *sqlx.DB, interval time.Duration) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	})
}
