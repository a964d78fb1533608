package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/jobs"
	"github.com/jonathan/resume-pipeline/internal/server"
	"github.com/jonathan/resume-pipeline/internal/server/middleware"
	"github.com/jonathan/resume-pipeline/internal/server/ratelimit"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	servePort    int
	serveWorkers int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that accepts resume jobs and serves their status and artifacts.

With --workers > 0 the server also runs a worker pool in the same process. The
in-memory store cannot be shared, so STORE_BACKEND=memory always runs embedded
workers.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides PORT)")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 0, "Run this many embedded workers (0 = API only)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply pending database migrations before starting")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workers := serveWorkers
	if cfg.StoreBackend == config.StoreMemory && workers == 0 {
		workers = cfg.WorkerCount
	}

	a, err := newApp(ctx, cfg, logger, appOptions{pipeline: workers > 0, migrate: serveMigrate})
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := newServer(a, servePort)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if workers > 0 {
		pool := jobs.NewPool(a.scheduler, jobs.PoolConfig{
			Workers:       workers,
			PollInterval:  cfg.PollInterval,
			SweepInterval: cfg.SweepInterval,
		})
		g.Go(func() error { return pool.Run(gctx) })
	}

	logger.Info("service started", "workers", workers, "store", cfg.StoreBackend)
	return g.Wait()
}

// newServer wires the HTTP surface; port 0 falls back to the configured PORT
func newServer(a *app, port int) (*server.Server, error) {
	if port == 0 {
		port = a.cfg.Port
	}

	var tokens middleware.TokenValidator
	jwtCfg, err := a.cfg.JWT()
	if err != nil {
		return nil, fmt.Errorf("invalid JWT configuration: %w", err)
	}
	if jwtCfg != nil {
		tokens = server.NewJWTService(jwtCfg).AsTokenValidator()
	} else {
		a.logger.Warn("JWT_SECRET not set; trusting the X-Owner-ID header")
	}

	limiter := ratelimit.NewLimiter(ratelimit.NewConfig(ratelimit.Settings{
		Enabled:       a.cfg.RateLimitEnabled,
		DefaultLimit:  a.cfg.RateLimitDefault,
		DefaultWindow: a.cfg.RateLimitWindow,
		SubmitLimit:   a.cfg.RateLimitSubmit,
		Allowlist:     a.cfg.RateLimitAllowlist,
		Denylist:      a.cfg.RateLimitDenylist,
	}))

	return server.New(server.Options{
		Port:              port,
		Scheduler:         a.scheduler,
		Status:            a.status,
		Metrics:           a.metrics,
		Limiter:           limiter,
		Tokens:            tokens,
		Logger:            a.logger,
		EventPollInterval: a.cfg.EventPollInterval,
		Ready:             func(ctx context.Context) error { return a.ready(ctx) },
	}), nil
}
