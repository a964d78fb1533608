package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/ingestion"
	"github.com/jonathan/resume-pipeline/internal/types"
	"github.com/spf13/cobra"
)

var (
	submitOwner    string
	submitProfile  string
	submitResume   string
	submitName     string
	submitEmail    string
	submitJob      string
	submitMode     string
	submitPriority int
	submitJSON     bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Queue a resume generation job",
	Long: `Queue a job for the given owner. The candidate profile comes either from a JSON
profile file (--profile) or from a plain-text resume (--resume) plus --name.

The job description is read from --job; use "-" to read it from stdin. HTML
postings are reduced to plain text before the job is stored.`,
	Example: `  resume_agent submit --owner alice --resume resume.txt --name "Alice Doe" --job posting.html
  cat posting.txt | resume_agent submit --owner alice --profile profile.json --job - --priority 10`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitOwner, "owner", "", "Owner ID the job is submitted for")
	submitCmd.Flags().StringVar(&submitProfile, "profile", "", "Path to profile JSON")
	submitCmd.Flags().StringVar(&submitResume, "resume", "", "Path to plain-text resume (alternative to --profile)")
	submitCmd.Flags().StringVar(&submitName, "name", "", "Candidate name (with --resume)")
	submitCmd.Flags().StringVar(&submitEmail, "email", "", "Candidate email (with --resume)")
	submitCmd.Flags().StringVar(&submitJob, "job", "", `Path to job description, or "-" for stdin`)
	submitCmd.Flags().StringVar(&submitMode, "mode", string(types.ModeTailored), "Generation mode: tailored or conservative")
	submitCmd.Flags().IntVar(&submitPriority, "priority", 0, "Priority from -100 to 100; higher runs first")
	submitCmd.Flags().BoolVar(&submitJSON, "json", false, "Print the created job as JSON")

	_ = submitCmd.MarkFlagRequired("owner")
	_ = submitCmd.MarkFlagRequired("job")
	submitCmd.MarkFlagsMutuallyExclusive("profile", "resume")
	submitCmd.MarkFlagsOneRequired("profile", "resume")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	payload, err := readPayload(cmd.InOrStdin())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()
	if cfg.StoreBackend == config.StoreMemory {
		logger.Warn("memory store: the job will not outlive this command")
	}

	job, err := a.scheduler.Submit(ctx, submitOwner, payload, submitPriority)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if submitJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}
	_, _ = fmt.Fprintf(out, "Job submitted: %s\n", job.ID)
	_, _ = fmt.Fprintf(out, "  Status:   %s\n", job.Status)
	_, _ = fmt.Fprintf(out, "  Priority: %d\n", job.Priority)
	_, _ = fmt.Fprintf(out, "\nTrack it with: resume_agent status %s --watch\n", job.ID)
	return nil
}

func readPayload(stdin io.Reader) (types.JobPayload, error) {
	var payload types.JobPayload

	if submitProfile != "" {
		data, err := os.ReadFile(submitProfile)
		if err != nil {
			return payload, fmt.Errorf("failed to read profile: %w", err)
		}
		if err := json.Unmarshal(data, &payload.Profile); err != nil {
			return payload, fmt.Errorf("failed to parse profile JSON: %w", err)
		}
	} else {
		data, err := os.ReadFile(submitResume)
		if err != nil {
			return payload, fmt.Errorf("failed to read resume: %w", err)
		}
		payload.Profile = types.ProfileSnapshot{
			Name:       submitName,
			Email:      submitEmail,
			ResumeText: string(data),
		}
	}

	if submitJob == "-" {
		description, err := io.ReadAll(stdin)
		if err != nil {
			return payload, fmt.Errorf("failed to read job description: %w", err)
		}
		payload.JobDescription = string(description)
	} else {
		cleaned, meta, err := ingestion.IngestFromFile(submitJob)
		if err != nil {
			return payload, fmt.Errorf("failed to read job description: %w", err)
		}
		logger.Debug("job description loaded", "path", submitJob, "format", meta.Format, "words", meta.Words)
		payload.JobDescription = cleaned
	}
	payload.Mode = types.GenerationMode(submitMode)
	return payload, nil
}
