// Package telemetry groups the observability packages of the holds service:
//
//   - logging: process logger with json, text and console formats
//   - metrics: Prometheus metrics for bulk jobs and frozen-children counters
//   - health: dependency checks behind the /health endpoint
package telemetry
