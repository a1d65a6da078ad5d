/*
Package cli provides helpers shared by the holds command: error types with
exit codes, signal handling, output formatting and a bulk job progress bar.

Signal Handling:

	ctx, cancel := cli.SetupSignalHandler()
	defer cancel()

Progress Reporting:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(total)
	progress.Update(status.ProcessedItems, status.ErrorsCount)
	progress.Finish(string(status.Status))
*/
package cli
