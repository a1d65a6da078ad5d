// Package server exposes holds and bulk jobs over HTTP.
//
// # Routes
//
//	POST /api/v1/holds                  create a hold
//	GET  /api/v1/holds/{hold}           hold and its directly held items
//	POST /api/v1/holds/{hold}/bulk      submit a bulk job (202 Accepted)
//	GET  /api/v1/bulk                   statuses held in memory, newest first
//	GET  /api/v1/bulk/{id}              one status
//	POST /api/v1/bulk/{id}/cancel       request cooperative cancellation
//	GET  /api/v1/nodes/{ref}/frozen     freeze state of a node
//	GET  /health                        dependency checks
//	GET  /metrics                       Prometheus metrics
//
// Validation failures answer 400 and unknown ids 404, with a JSON body of
// the form {"error": {"code": "...", "message": "..."}}.
//
// # Usage
//
//	api := server.NewAPI(service, executor, executor.Monitor())
//	srv := server.NewServer(&cfg.Server, api.Handler(server.Options{
//	    Health:      checker.Handler(),
//	    Metrics:     collector.Handler(),
//	    MetricsPath: cfg.Telemetry.Metrics.Path,
//	}))
//	err := srv.Start(ctx) // blocks until ctx is cancelled
package server
