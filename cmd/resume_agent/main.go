// Package main provides the resume pipeline service: the HTTP API, the worker
// pool and operator commands.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "resume_agent",
	Short: "Asynchronous resume generation service",
	Long: `Resume Agent accepts resume-generation jobs, drafts a tailored resume through an
ordered list of model providers, typesets and compiles it to PDF, and stores every
stage output as an immutable, versioned artifact.

Configuration comes from the environment (and .env), optionally overlaid by a JSON
file passed with --config.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a JSON config file (environment variables take precedence)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	cfg = loaded
	logger = observability.NewLogger(cmd.ErrOrStderr(), cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
