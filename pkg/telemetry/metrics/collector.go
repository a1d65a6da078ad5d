package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/holds/pkg/config"
	"mercator-hq/holds/pkg/frozen"
)

// Collector owns the metrics registry and implements the metric sinks of the
// bulk executor and the frozen-children cache.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	bulkMetrics   *BulkMetrics
	frozenMetrics *FrozenMetrics
}

// NewCollector creates a collector registered on registry. If registry is
// nil a new one is created.
//
// Example:
//
//	collector := metrics.NewCollector(&config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "holds",
//	}, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.JobDurationBuckets) == 0 {
		cfg.JobDurationBuckets = append([]float64(nil), config.DefaultJobDurationBuckets...)
	}

	return &Collector{
		config:        cfg,
		registry:      registry,
		bulkMetrics:   NewBulkMetrics(cfg, registry),
		frozenMetrics: NewFrozenMetrics(cfg, registry),
	}
}

// RecordJobSubmitted counts an accepted bulk submission.
func (c *Collector) RecordJobSubmitted(action string) {
	if !c.config.Enabled {
		return
	}
	c.bulkMetrics.jobsSubmitted.WithLabelValues(action).Inc()
}

// RecordJobStarted marks a job as running.
func (c *Collector) RecordJobStarted() {
	if !c.config.Enabled {
		return
	}
	c.bulkMetrics.jobsRunning.Inc()
}

// RecordJobFinished records a terminal transition and the job's running time.
func (c *Collector) RecordJobFinished(status string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.bulkMetrics.jobsFinished.WithLabelValues(status).Inc()
	c.bulkMetrics.jobsRunning.Dec()
	c.bulkMetrics.jobDuration.Observe(duration.Seconds())
}

// RecordJobNeverStarted records a job that reached a terminal state while
// still queued.
func (c *Collector) RecordJobNeverStarted(status string) {
	if !c.config.Enabled {
		return
	}
	c.bulkMetrics.jobsFinished.WithLabelValues(status).Inc()
}

// RecordItemProcessed counts one processed item.
func (c *Collector) RecordItemProcessed(action string, failed bool) {
	if !c.config.Enabled {
		return
	}
	c.bulkMetrics.itemsProcessed.WithLabelValues(action).Inc()
	if failed {
		c.bulkMetrics.itemErrors.WithLabelValues(action).Inc()
	}
}

// RecordCounterUpdate counts a frozen-children counter update.
func (c *Collector) RecordCounterUpdate(op string) {
	if !c.config.Enabled {
		return
	}
	c.frozenMetrics.updates.WithLabelValues(op).Inc()
	if op == frozen.OpReconcile {
		c.frozenMetrics.reconciliations.Inc()
	}
}

// RecordCounterError counts a failed frozen-children counter update.
func (c *Collector) RecordCounterError(op string) {
	if !c.config.Enabled {
		return
	}
	c.frozenMetrics.errors.WithLabelValues(op).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
