package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/jobs"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued or running job",
	Long: `Cancel a job. Queued jobs fail immediately; a running job stops at its next
stage boundary and never produces a rendered output.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
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

	job, err := a.scheduler.Cancel(ctx, "", jobID)
	if errors.Is(err, jobs.ErrAlreadyTerminal) && job != nil {
		return fmt.Errorf("job %s already finished with status %s", jobID, job.Status)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if job.Status.IsTerminal() {
		_, _ = fmt.Fprintf(out, "Job %s cancelled\n", job.ID)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Cancellation requested for job %s (currently %s, stage %s)\n", job.ID, job.Status, job.Stage)
	return nil
}
