package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RunsTotal counts aggregation runs by terminal status.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nav_runs_total",
			Help: "Aggregation runs by status (success, partial, failed).",
		},
		[]string{"status"},
	)

	// AdapterDuration observes per-adapter collection latency.
	AdapterDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nav_adapter_duration_seconds",
			Help:    "Wall-clock time spent collecting and valuing one adapter.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
		[]string{"adapter"},
	)

	// AdapterFailures counts whole-adapter failures recorded in snapshots.
	AdapterFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nav_adapter_failures_total",
			Help: "Adapters that failed entirely during a run.",
		},
		[]string{"adapter"},
	)

	// QuoteRequests counts quote outcomes by source.
	QuoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nav_quote_requests_total",
			Help: "Price quotes by result source (Direct, CoWSwap, CoWSwap-Fallback, Failed).",
		},
		[]string{"source"},
	)

	// SnapshotPushes counts store writes by status.
	SnapshotPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nav_snapshot_pushes_total",
			Help: "Snapshot store writes by status.",
		},
		[]string{"status"},
	)
)

// MustRegisterMetrics registers every collector with the default
// registry. Call once at startup.
func MustRegisterMetrics() {
	prometheus.MustRegister(
		RunsTotal,
		AdapterDuration,
		AdapterFailures,
		QuoteRequests,
		SnapshotPushes,
	)
}
