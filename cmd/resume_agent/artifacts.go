package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/types"
	"github.com/spf13/cobra"
)

var (
	artifactVersion int
	artifactOut     string
)

var artifactsCmd = &cobra.Command{
	Use:   "artifacts <job-id>",
	Short: "List a job's stored artifacts",
	Args:  cobra.ExactArgs(1),
	RunE:  runListArtifacts,
}

var artifactsFetchCmd = &cobra.Command{
	Use:   "fetch <job-id> <type>",
	Short: "Fetch one artifact version",
	Long: `Write an artifact's content to --out, or to stdout when --out is not set.

Types: INPUT_SNAPSHOT, STRUCTURED_RESUME, TYPESET_SOURCE, RENDERED_OUTPUT, DIAGNOSTIC_LOG.
Without --version the latest version is returned.`,
	Args: cobra.ExactArgs(2),
	RunE: runFetchArtifact,
}

func init() {
	artifactsFetchCmd.Flags().IntVar(&artifactVersion, "version", 0, "Artifact version (default latest)")
	artifactsFetchCmd.Flags().StringVarP(&artifactOut, "out", "o", "", "Output file path")
	artifactsCmd.AddCommand(artifactsFetchCmd)
	rootCmd.AddCommand(artifactsCmd)
}

func runListArtifacts(cmd *cobra.Command, args []string) error {
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

	infos, err := a.status.ListArtifacts(ctx, "", jobID)
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintArtifacts(jobID, infos)
	return nil
}

func runFetchArtifact(cmd *cobra.Command, args []string) error {
	jobID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid job ID %q: %w", args[0], err)
	}
	artifactType, ok := types.ParseArtifactType(args[1])
	if !ok {
		return fmt.Errorf("unknown artifact type %q", args[1])
	}
	var version *int
	if cmd.Flags().Changed("version") {
		if artifactVersion < 1 {
			return fmt.Errorf("--version must be a positive integer")
		}
		version = &artifactVersion
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	artifact, err := a.status.FetchArtifact(ctx, "", jobID, artifactType, version)
	if err != nil {
		return err
	}

	if artifactOut == "" {
		_, err = cmd.OutOrStdout().Write(artifact.Content)
		return err
	}
	if err := os.WriteFile(artifactOut, artifact.Content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", artifactOut, err)
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s v%d (%d bytes, sha256 %s) to %s\n",
		artifact.Type, artifact.Version, artifact.SizeBytes, artifact.Digest, artifactOut)
	return nil
}
