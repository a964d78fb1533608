package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/status"
	"github.com/spf13/cobra"
)

var (
	statusWatch    bool
	statusJSON     bool
	statusInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status and progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Keep polling until the job finishes")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the status as JSON")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", 2*time.Second, "Polling interval with --watch")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	jobID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job ID %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	printer := observability.NewPrinter(cmd.OutOrStdout())
	show := func(view *status.View) error {
		if statusJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(view)
		}
		printer.PrintJob(view)
		return nil
	}

	var last *status.View
	for {
		// operator access: no caller ID
		view, err := a.status.JobStatus(ctx, "", jobID)
		if err != nil {
			return err
		}
		if last == nil || last.Status != view.Status || last.Stage != view.Stage || last.Progress != view.Progress {
			if err := show(view); err != nil {
				return err
			}
		}
		last = view
		if !statusWatch || view.Status.IsTerminal() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(statusInterval):
		}
	}
}
