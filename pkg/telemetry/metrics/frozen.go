package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/holds/pkg/config"
)

// FrozenMetrics tracks frozen-children counter maintenance.
type FrozenMetrics struct {
	updates         *prometheus.CounterVec
	errors          *prometheus.CounterVec
	reconciliations prometheus.Counter
}

// NewFrozenMetrics creates and registers frozen-children counter metrics.
func NewFrozenMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *FrozenMetrics {
	fm := &FrozenMetrics{
		updates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "frozen",
				Name:      "counter_updates_total",
				Help:      "Total number of frozen-children counter updates",
			},
			[]string{"op"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "frozen",
				Name:      "counter_errors_total",
				Help:      "Total number of failed frozen-children counter updates",
			},
			[]string{"op"},
		),

		reconciliations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "frozen",
				Name:      "reconciliations_total",
				Help:      "Total number of container counter reconciliations",
			},
		),
	}

	registry.MustRegister(fm.updates, fm.errors, fm.reconciliations)

	return fm
}
