// Package storage provides archive backends for terminal bulk statuses.
//
// # Overview
//
// The bulk monitor keeps every status in memory while its job runs. Once a
// job is terminal the status is saved to an archive so it can still be read
// after the retention pruner evicts it from memory:
//
//   - Memory: process-local archive (default, no persistence)
//   - SQLite: file-based archive that survives restarts
//
// # Usage
//
//	archive, err := storage.NewSQLiteArchive("/var/lib/holds/bulk.db")
//	if err != nil {
//	    return err
//	}
//	defer archive.Close()
//
//	monitor := bulk.NewMonitor(archive)
//
// # Thread Safety
//
// Both archives are safe for concurrent use.
package storage
