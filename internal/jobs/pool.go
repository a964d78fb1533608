package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pool defaults
const (
	DefaultPollInterval  = time.Second
	DefaultSweepInterval = 30 * time.Second
)

// PoolConfig sizes a worker pool
type PoolConfig struct {
	Workers       int
	PollInterval  time.Duration
	SweepInterval time.Duration
	// DisableJanitor skips the lease sweep, for processes that run it elsewhere
	DisableJanitor bool
}

// Pool runs workers that claim and run jobs, plus a janitor that recovers expired leases
type Pool struct {
	scheduler *Scheduler
	cfg       PoolConfig
	logger    *slog.Logger
}

// NewPool creates a pool over scheduler. Each worker claims under "<worker id>-<n>".
func NewPool(scheduler *Scheduler, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Pool{scheduler: scheduler, cfg: cfg, logger: scheduler.logger}
}

// Run blocks until ctx is cancelled. In-flight jobs are abandoned on shutdown
// and picked up again once their lease expires.
func (p *Pool) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.cfg.Workers; i++ {
		w := p.scheduler.ForWorker(fmt.Sprintf("%s-%d", p.scheduler.WorkerID(), i))
		g.Go(func() error {
			return p.work(gctx, w)
		})
	}
	if !p.cfg.DisableJanitor {
		g.Go(func() error {
			return p.janitor(gctx)
		})
	}

	p.logger.InfoContext(ctx, "worker pool started",
		slog.Int("workers", p.cfg.Workers),
		slog.Duration("poll_interval", p.cfg.PollInterval),
		slog.Bool("janitor", !p.cfg.DisableJanitor),
	)
	err := g.Wait()
	p.logger.InfoContext(ctx, "worker pool stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) work(ctx context.Context, w *Scheduler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		job, err := w.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.ErrorContext(ctx, "claim failed", slog.String("worker_id", w.WorkerID()), slog.String("error", err.Error()))
		}
		if job == nil {
			if !sleep(ctx, p.cfg.PollInterval) {
				return nil
			}
			continue
		}
		// outcomes are logged and recorded by Run
		_ = w.Run(ctx, job)
	}
}

func (p *Pool) janitor(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		p.sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *Pool) sweep(ctx context.Context) {
	n, err := p.scheduler.SweepExpiredLeases(ctx)
	if err != nil && ctx.Err() == nil {
		p.logger.ErrorContext(ctx, "lease sweep failed", slog.String("error", err.Error()))
	} else if n > 0 {
		p.logger.InfoContext(ctx, "recovered expired leases", slog.Int("count", n))
	}
	if err := p.scheduler.RefreshQueueMetrics(ctx); err != nil && ctx.Err() == nil {
		p.logger.WarnContext(ctx, "failed to refresh queue metrics", slog.String("error", err.Error()))
	}
}

// sleep waits for d or until ctx is done; it reports whether the wait completed
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
