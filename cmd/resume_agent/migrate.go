package main

import (
	"errors"
	"fmt"

	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("migrations require STORE_BACKEND=postgres and DATABASE_URL")

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireDatabase(); err != nil {
			return err
		}
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireDatabase(); err != nil {
			return err
		}
		if migrateSteps <= 0 {
			return fmt.Errorf("--steps must be positive")
		}
		if err := db.MigrateDown(cfg.DatabaseURL, migrateSteps); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := requireDatabase(); err != nil {
			return err
		}
		return printVersion(cmd)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

func requireDatabase() error {
	if cfg.StoreBackend != config.StorePostgres || cfg.DatabaseURL == "" {
		return errNoDatabase
	}
	return nil
}

func printVersion(cmd *cobra.Command) error {
	version, dirty, err := db.MigrationVersion(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if dirty {
		_, _ = fmt.Fprintf(out, "Schema version: %d (dirty)\n", version)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Schema version: %d\n", version)
	return nil
}
