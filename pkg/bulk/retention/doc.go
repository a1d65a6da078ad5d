// Package retention bounds how many bulk statuses the service keeps.
//
// Terminal statuses stay readable through the monitor until the pruner
// evicts them. Two policies are applied, in order:
//
//   - Age: statuses that ended more than MaxAge ago are purged
//   - Count: if more than MaxStatuses terminal statuses remain, the oldest
//     are purged until the bound holds
//
// Running and queued jobs are never purged. Both policies also trim the
// status archive when one is configured. When ArchivePath is set, purged
// statuses are first written to a JSON file in that directory.
//
// # Scheduling
//
// The Scheduler runs the pruner on a cron expression:
//
//	pruner := retention.NewPruner(monitor, &retention.Config{
//	    MaxAge:        24 * time.Hour,
//	    MaxStatuses:   10000,
//	    PurgeSchedule: "*/15 * * * *",
//	})
//	if err := pruner.Start(ctx); err != nil {
//	    return err
//	}
//	defer pruner.Stop()
package retention
