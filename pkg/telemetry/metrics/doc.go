// Package metrics provides Prometheus metrics for the holds service.
//
// # Metrics
//
// Bulk jobs:
//
//   - holds_bulk_jobs_submitted_total{action}
//   - holds_bulk_jobs_finished_total{status}
//   - holds_bulk_jobs_running
//   - holds_bulk_items_processed_total{action}
//   - holds_bulk_item_errors_total{action}
//   - holds_bulk_job_duration_seconds
//
// Frozen-children counters:
//
//   - holds_frozen_counter_updates_total{op}
//   - holds_frozen_counter_errors_total{op}
//   - holds_frozen_reconciliations_total
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	executor := bulk.NewExecutor(searcher, service, monitor, execCfg, collector)
//	cache := frozen.NewCache(collector)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// A disabled collector accepts every call and records nothing.
package metrics
