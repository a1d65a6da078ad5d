// Package logging builds the process logger.
//
// Three formats are supported: "json" and "text" use the slog handlers,
// "console" uses a colored handler meant for terminals. The level can be
// changed at runtime, which the config watcher uses on reload.
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger.Logger)
//
// Records logged with a context carry the bulk_status_id, hold and
// request_id fields stored in it:
//
//	ctx = logging.WithBulkStatusID(ctx, status.ID)
//	slog.InfoContext(ctx, "bulk job submitted")
package logging
