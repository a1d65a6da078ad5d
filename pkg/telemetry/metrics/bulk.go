package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/holds/pkg/config"
)

// BulkMetrics tracks bulk job lifecycle and item throughput.
type BulkMetrics struct {
	jobsSubmitted  *prometheus.CounterVec
	jobsFinished   *prometheus.CounterVec
	jobsRunning    prometheus.Gauge
	itemsProcessed *prometheus.CounterVec
	itemErrors     *prometheus.CounterVec
	jobDuration    prometheus.Histogram
}

// NewBulkMetrics creates and registers bulk metrics.
func NewBulkMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *BulkMetrics {
	bm := &BulkMetrics{
		jobsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "bulk",
				Name:      "jobs_submitted_total",
				Help:      "Total number of accepted bulk jobs",
			},
			[]string{"action"},
		),

		jobsFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "bulk",
				Name:      "jobs_finished_total",
				Help:      "Total number of bulk jobs that reached a terminal state",
			},
			[]string{"status"},
		),

		jobsRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "bulk",
				Name:      "jobs_running",
				Help:      "Number of bulk jobs currently running",
			},
		),

		itemsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "bulk",
				Name:      "items_processed_total",
				Help:      "Total number of items processed by bulk jobs",
			},
			[]string{"action"},
		),

		itemErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "bulk",
				Name:      "item_errors_total",
				Help:      "Total number of items that failed in bulk jobs",
			},
			[]string{"action"},
		),

		jobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "bulk",
				Name:      "job_duration_seconds",
				Help:      "Running time of bulk jobs in seconds",
				Buckets:   cfg.JobDurationBuckets,
			},
		),
	}

	registry.MustRegister(
		bm.jobsSubmitted,
		bm.jobsFinished,
		bm.jobsRunning,
		bm.itemsProcessed,
		bm.itemErrors,
		bm.jobDuration,
	)

	return bm
}
