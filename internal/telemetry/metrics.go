// Package telemetry provides logging setup and Prometheus metrics.
//
// All metrics are registered against the default Prometheus registry and are served by
// the side-channel HTTP server started by cmd/server:
//
//	GET http://<host>:<ORGSPACE_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// The endpoint is not part of the gin router.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (the route template such as /org/get/:org_name) rather
// than the raw URL so organization names never become label values. Tenant metrics are
// labelled by operation and result class only.
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/orgspace/orgspace/internal/safego"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
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
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Tenant lifecycle metrics.
//
// TenantOperationsTotal counts lifecycle calls by operation (create, login, rename,
// delete) and result (ok, or the error class such as already_exists or internal).
//
// Example PromQL queries:
//   - Failed renames:       increase(tenant_operations_total{operation="rename",result="internal"}[1h])
//   - Login failure ratio:  sum(rate(tenant_operations_total{operation="login",result!="ok"}[5m])) / sum(rate(tenant_operations_total{operation="login"}[5m]))
//
// A non-zero internal rate on rename means a migration stopped partway; the matching
// error log lists the collections already moved.
var (
	TenantOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_operations_total",
			Help: "Total number of tenant lifecycle operations, by operation and result.",
		},
		[]string{"operation", "result"},
	)

	MigrationDocumentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tenant_migration_documents_total",
			Help: "Total number of documents copied between namespaces by renames.",
		},
	)

	MigrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tenant_migration_duration_seconds",
			Help:    "Duration of a complete namespace migration.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		},
	)

	LockWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tenant_lock_wait_seconds",
			Help:    "Time spent waiting for per-organization locks, by operation.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"operation"},
	)

	ArchiveSnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tenant_archive_snapshots_total",
			Help: "Total number of namespace archives written before deletion, by result.",
		},
		[]string{"result"},
	)
)

// DBOpenConnections tracks open connections in the SQL registry's pool. It is sampled
// by StartDBStatsCollector rather than per request.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples db's pool statistics every interval until ctx is
// cancelled or the database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := db.PingContext(ctx); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}
