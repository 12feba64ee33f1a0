// Package telemetry provides logging setup and Prometheus metrics for the EMS API.
//
// Metrics are registered against the default Prometheus registry and served by
// the side-channel HTTP server started in main.go:
//
//	GET http://<host>:<EMS_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// HTTP metrics use the Gin route template (c.FullPath()) rather than the raw URL
// so plant UIDs in paths do not explode label cardinality.
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
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

// Authentication outcomes.
//
// AuthAttemptsTotal has labels {flow, outcome}. flow is one of login,
// two_factor_challenge; outcome is a short result code such as success,
// invalid_credentials, challenge_issued, expired, invalid_response.
//
// Example PromQL:
//   - Failed 2FA rate:  rate(auth_attempts_total{flow="two_factor_challenge",outcome!="success"}[5m])
var AuthAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_attempts_total",
		Help: "Total number of authentication attempts, by flow and outcome.",
	},
	[]string{"flow", "outcome"},
)

// Remote V2 plant API metrics.
//
// PlantAPIRequestsTotal has labels {outcome} (success, remote_error,
// not_configured). PlantAPIRequestDuration observes each complete call
// including retries. PlantAPIFallbacksTotal counts candidate paths that failed
// and caused the aggregator to try the next one.
var (
	PlantAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plant_api_requests_total",
			Help: "Total number of remote plant API calls, by outcome.",
		},
		[]string{"outcome"},
	)

	PlantAPIRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plant_api_request_duration_seconds",
			Help:    "Duration of remote plant API calls including retries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 60},
		},
	)

	PlantAPIFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plant_api_fallbacks_total",
			Help: "Total number of failed candidate paths that fell through to the next candidate.",
		},
	)
)

// ExpiredTokensDeletedTotal counts API tokens removed by the cleanup job.
var ExpiredTokensDeletedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "api_tokens_expired_deleted_total",
		Help: "Total number of expired API tokens deleted by the cleanup job.",
	},
)

// DBOpenConnections tracks open connections in the sql.DB pool, sampled every
// 30 seconds by StartDBStatsCollector.
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples pool statistics every 30 seconds until the
// database stops answering pings, which happens after shutdown closes it.
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
