package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh outcomes.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeStale = "stale" // superseded by a newer attempt
)

var (
	RefreshAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sheetdash_refresh_attempts_total",
			Help: "Sheet refresh attempts by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	RefreshDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sheetdash_refresh_duration_seconds",
			Help:    "Sheet fetch and normalize duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"outcome"},
	)

	TasksLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sheetdash_tasks_loaded",
			Help: "Number of tasks in the current snapshot",
		},
	)

	LastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sheetdash_last_refresh_success_timestamp_seconds",
			Help: "Unix time of the last applied refresh",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sheetdash_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)
)

func RecordRefresh(trigger, outcome string, d time.Duration) {
	RefreshAttempts.WithLabelValues(trigger, outcome).Inc()
	RefreshDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func RecordSnapshot(tasks int, at time.Time) {
	TasksLoaded.Set(float64(tasks))
	LastSuccess.Set(float64(at.Unix()))
}

func RecordHTTPRequestDuration(method, path, status string, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}
