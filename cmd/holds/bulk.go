package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/holds/pkg/bulk"
	"mercator-hq/holds/pkg/cli"
	"mercator-hq/holds/pkg/content"
)

var bulkFlags struct {
	hold       string
	query      string
	action     string
	createHold bool
	interval   time.Duration
	output     string
}

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Run a bulk hold membership job in-process",
	Long: `Run a bulk add or remove job against the configured repository and follow
its progress until it finishes.

Every item matching the query is added to (or removed from) the hold.
Press Ctrl+C once to cancel the job cooperatively; it stops at the next item
and reports CANCELLED.

Query terms (AND across keys, OR within a key):
  path:<glob>   name:<glob>   type:<record|container|other>
  parent:<ref>  ref:<ref>

Examples:
  # Hold everything under a case folder
  holds bulk --hold litigation-42 --query 'path:/cases/42/**' --action add

  # Release all PDFs, creating the hold if needed
  holds bulk --hold audit --create-hold --query 'name:*.pdf' --action remove`,
	RunE: runBulk,
}

func init() {
	rootCmd.AddCommand(bulkCmd)

	bulkCmd.Flags().StringVar(&bulkFlags.hold, "hold", "", "hold reference or name (required)")
	bulkCmd.Flags().StringVarP(&bulkFlags.query, "query", "q", "", "search query selecting the items")
	bulkCmd.Flags().StringVarP(&bulkFlags.action, "action", "a", "add", "membership change to apply (add, remove)")
	bulkCmd.Flags().BoolVar(&bulkFlags.createHold, "create-hold", false, "create the hold if it does not exist")
	bulkCmd.Flags().DurationVar(&bulkFlags.interval, "interval", 200*time.Millisecond, "progress polling interval")
	bulkCmd.Flags().StringVarP(&bulkFlags.output, "output", "o", "text", "final status format (text, json)")

	_ = bulkCmd.MarkFlagRequired("hold")
}

func runBulk(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(bulkFlags.output)
	if err != nil {
		return cli.NewConfigError("output", "invalid output format", err)
	}
	action, err := bulk.ParseAction(bulkFlags.action)
	if err != nil {
		return cli.NewConfigError("action", "invalid action", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := setupLogging(&cfg.Telemetry.Logging); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return cli.NewCommandError("bulk", err)
	}
	defer a.Close()

	hold, err := resolveHold(ctx, a, bulkFlags.hold, bulkFlags.createHold)
	if err != nil {
		return cli.NewCommandError("bulk", err)
	}

	status, err := a.executor.Submit(ctx, hold.Ref, bulk.Operation{Query: bulkFlags.query, Action: action})
	if err != nil {
		var validation *bulk.ValidationError
		if errors.As(err, &validation) {
			return cli.NewConfigError(validation.Field, "bulk request rejected", err)
		}
		return cli.NewCommandError("bulk", err)
	}

	status, err = follow(ctx, a.monitor, status.ID, cli.NewProgressReporter(cmd.ErrOrStderr()))
	if err != nil {
		return cli.NewCommandError("bulk", err)
	}

	if err := cli.NewFormatter(format).FormatTo(cmd.OutOrStdout(), statusView(status)); err != nil {
		return err
	}

	if status.Status == bulk.StatusError {
		return &cli.CommandError{Command: "bulk", Err: errors.New(status.FailureReason), Code: cli.ExitJobFailed}
	}
	return nil
}

// follow polls the job until it is terminal. The first interrupt requests
// cancellation; the job then finishes on its own.
func follow(ctx context.Context, monitor *bulk.Monitor, id string, progress cli.ProgressReporter) (bulk.BulkStatus, error) {
	interrupts := cli.Interrupts(ctx)
	ticker := time.NewTicker(bulkFlags.interval)
	defer ticker.Stop()

	started := false
	for {
		status, err := monitor.Status(ctx, id)
		if err != nil {
			progress.Error(err)
			return bulk.BulkStatus{}, err
		}

		if !started && (status.TotalItems != nil || status.Status.IsTerminal()) {
			var total int64
			if status.TotalItems != nil {
				total = *status.TotalItems
			}
			progress.Start(total)
			started = true
		}
		if started {
			progress.Update(status.ProcessedItems, status.ErrorsCount)
		}
		if status.Status.IsTerminal() {
			progress.Finish(status.Status.String())
			return status, nil
		}

		select {
		case <-ticker.C:
		case <-interrupts:
			if err := monitor.Cancel(ctx, bulk.CancellationRequest{
				BulkStatusID: id,
				Reason:       "interrupted by user",
			}); err != nil {
				return bulk.BulkStatus{}, err
			}
		}
	}
}

// resolveHold looks ref up as a hold reference, then as a hold name.
func resolveHold(ctx context.Context, a *app, ref string, create bool) (*content.Hold, error) {
	hold, err := a.holds.Hold(ctx, content.NodeRef(ref))
	if err == nil {
		return hold, nil
	}
	if !errors.Is(err, content.ErrHoldNotFound) {
		return nil, err
	}

	all, err := a.store.Holds(ctx)
	if err != nil {
		return nil, err
	}
	for _, h := range all {
		if h.Name == ref {
			return h, nil
		}
	}

	if !create {
		return nil, fmt.Errorf("hold %q: %w", ref, content.ErrHoldNotFound)
	}
	return a.holds.CreateHold(ctx, ref, "created by bulk command")
}

// bulkStatusView prints as a short report in text mode and as the status
// document in JSON mode.
type bulkStatusView bulk.BulkStatus

func statusView(s bulk.BulkStatus) bulkStatusView { return bulkStatusView(s) }

func (v bulkStatusView) String() string {
	s := bulk.BulkStatus(v)
	total := "unknown"
	if s.TotalItems != nil {
		total = fmt.Sprintf("%d", *s.TotalItems)
	}
	out := fmt.Sprintf("Bulk job %s\n  Hold:      %s\n  Action:    %s\n  Query:     %q\n  Status:    %s\n  Processed: %d (of %s)\n  Errors:    %d",
		s.ID, s.Hold, s.Action, s.Query, s.Status, s.ProcessedItems, total, s.ErrorsCount)
	if s.StartTime != nil && s.EndTime != nil {
		out += fmt.Sprintf("\n  Duration:  %s", s.EndTime.Sub(*s.StartTime).Round(time.Millisecond))
	}
	if s.CancellationReason != "" {
		out += fmt.Sprintf("\n  Cancelled: %s", s.CancellationReason)
	}
	if s.FailureReason != "" {
		out += fmt.Sprintf("\n  Failure:   %s", s.FailureReason)
	}
	return out
}

func (v bulkStatusView) MarshalJSON() ([]byte, error) {
	return json.Marshal(bulk.BulkStatus(v))
}
