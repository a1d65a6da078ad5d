// Package bulk runs asynchronous add-to-hold and remove-from-hold operations
// over every item matching a search query.
//
// # Overview
//
// A caller submits an Operation (query and action) against a hold. Submit
// validates the request, registers a QUEUED BulkStatus with the Monitor and
// returns immediately; the job itself runs on its own goroutine:
//
//	QUEUED -> RUNNING -> DONE | CANCELLED | ERROR
//
// The job pages through the search results, classifies every item and
// applies the membership change to records and containers one item at a
// time. A failure on one item is counted in ErrorsCount and the job moves on.
// Only a failure of the search collaborator ends the job with ERROR.
//
// # Cancellation
//
// Monitor.Cancel sets a flag that the job polls before every page and every
// item. Items already processed keep their changes. The first reason
// supplied is the one reported.
//
// # Progress
//
// TotalItems is the search engine's count from the first page and is
// advisory only; the job terminates on the search collaborator's "no more
// results" signal, never on a count.
//
// # Usage
//
//	monitor := bulk.NewMonitor(nil)
//	executor := bulk.NewExecutor(searcher, service, monitor, nil, nil)
//	defer executor.Close()
//
//	status, err := executor.Submit(ctx, holdRef, bulk.Operation{
//	    Query:  "path:/cases/**",
//	    Action: bulk.ActionAdd,
//	})
//
//	// later
//	status, err = monitor.Status(ctx, status.ID)
package bulk
