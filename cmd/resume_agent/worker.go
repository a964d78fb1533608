package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/jobs"
	"github.com/spf13/cobra"
)

var (
	workerCount     int
	workerNoJanitor bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker pool against the shared job store",
	Long: `Claim queued jobs and run them through generation and compilation.

Any number of worker processes may run against the same database; claims are
exclusive and leases are renewed while a job runs. Each pool also sweeps
expired leases unless --no-janitor is set.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().IntVar(&workerCount, "workers", 0, "Number of concurrent workers (overrides WORKER_COUNT)")
	workerCmd.Flags().BoolVar(&workerNoJanitor, "no-janitor", false, "Do not sweep expired leases from this process")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if cfg.StoreBackend == config.StoreMemory {
		return fmt.Errorf("worker requires STORE_BACKEND=postgres; use 'serve' to run embedded workers with the memory store")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{pipeline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	n := workerCount
	if n <= 0 {
		n = cfg.WorkerCount
	}
	logger.Info("worker pool starting", "workers", n, "worker_id", a.scheduler.WorkerID())
	return jobs.NewPool(a.scheduler, jobs.PoolConfig{
		Workers:        n,
		PollInterval:   cfg.PollInterval,
		SweepInterval:  cfg.SweepInterval,
		DisableJanitor: workerNoJanitor,
	}).Run(ctx)
}
