// Package telemetry provides application-level observability for the
// CoreVault Registry.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<CVR_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns the Prometheus text exposition
// format and is meant to be scraped every 15–60 seconds. It is NOT served by
// the Gin router.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as
// /v1/systems/:slug/releases/:version) rather than the raw request URL, so
// user-supplied path segments like version strings cannot blow up label
// cardinality.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/corevault-registry/corevault-registry/internal/safego"
)

// HTTP metrics — labelled by method, route template, and status code.
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

// Release ledger metrics.
//
// ReleasesCreatedTotal is labelled {kind} ("core" or "system"). A sustained
// drop to zero during active development hours is a useful upload-path alert.
//
// ReleasesYankedTotal shares the {kind} label; yanks are rare, so
// increase(releases_yanked_total[1h]) > 5 is worth paging on.
//
// Example PromQL queries:
//   - Publishing rate by kind:  sum by (kind) (rate(releases_created_total[1h]))
//   - Duplicate-version rejections:  rate(release_version_conflicts_total[1h])
var (
	ReleasesCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releases_created_total",
			Help: "Total number of releases published, by target kind.",
		},
		[]string{"kind"},
	)

	ReleasesYankedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "releases_yanked_total",
			Help: "Total number of releases yanked, by target kind.",
		},
		[]string{"kind"},
	)

	ReleaseVersionConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "release_version_conflicts_total",
			Help: "Total number of release creations rejected because the version slot was taken.",
		},
	)
)

// Artifact metrics.
//
// ArtifactDownloadsTotal is labelled {kind} and incremented whenever a client
// resolves a download URL. ArtifactIngestBytesTotal counts bytes accepted
// into the object store; dedup hits do not add to it.
//
// Example PromQL queries:
//   - Download rate by kind:  sum by (kind) (rate(artifact_downloads_total[1h]))
//   - Ingest throughput:      rate(artifact_ingest_bytes_total[5m])
//   - Dedup ratio:            rate(artifact_dedup_hits_total[1h]) / rate(artifact_ingests_total[1h])
var (
	ArtifactDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "artifact_downloads_total",
			Help: "Total number of artifact download URL resolutions, by release target kind.",
		},
		[]string{"kind"},
	)

	ArtifactIngestsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artifact_ingests_total",
			Help: "Total number of artifact uploads accepted.",
		},
	)

	ArtifactDedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artifact_dedup_hits_total",
			Help: "Total number of uploads resolved to an already-stored artifact by digest.",
		},
	)

	ArtifactIngestBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "artifact_ingest_bytes_total",
			Help: "Total bytes written to the object store by artifact ingest.",
		},
	)
)

// DBOpenConnections tracks the number of open connections currently held by
// the sql.DB pool. Sampled every 30 seconds by StartDBStatsCollector rather
// than per-request.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <CVR_DATABASE_MAX_CONNECTIONS> * 100
//   - Alert on near-exhaustion: db_open_connections > 20  (for max_connections=25)
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates DBOpenConnections.
// The goroutine exits when the database becomes unreachable, which happens
// automatically at shutdown once main defers db.Close().
//
// Call this once, immediately after the database connection succeeds:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	safego.Go("db-stats-collector", func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	})
}
