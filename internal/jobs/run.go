package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/resume-pipeline/internal/compile"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/events"
	"github.com/jonathan/resume-pipeline/internal/generation"
	"github.com/jonathan/resume-pipeline/internal/ingestion"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// Run executes the pipeline for a job this scheduler has claimed and records the outcome.
//
// The lease is renewed while the pipeline runs. If it is lost, or ctx is cancelled
// (shutdown), the job is abandoned without a transition and the janitor recovers it.
func (s *Scheduler) Run(ctx context.Context, job *types.Job) error {
	if s.generator == nil || s.compiler == nil {
		return errors.New("scheduler has no generator or compiler configured")
	}
	ctx = s.jobContext(ctx, job)
	started := s.now()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.keepLease(runCtx, cancel, job, stop)
	}()

	runErr := s.execute(runCtx, job)
	close(stop)
	wg.Wait()

	var lost *LeaseExpiredError
	if errors.As(context.Cause(runCtx), &lost) {
		s.logger.WarnContext(ctx, "lease lost while running; abandoning job", slog.String("error", lost.Error()))
		return lost
	}
	if ctx.Err() != nil {
		s.logger.InfoContext(ctx, "shutting down mid-run; job will be recovered after lease expiry")
		return ctx.Err()
	}
	return s.finish(ctx, job, runErr, started)
}

// keepLease extends the lease every third of its duration until stop is closed
func (s *Scheduler) keepLease(ctx context.Context, cancel context.CancelCauseFunc, job *types.Job, stop <-chan struct{}) {
	interval := s.cfg.LeaseDuration / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.store.RenewLease(ctx, job.ID, s.cfg.WorkerID, s.cfg.LeaseDuration)
			if errors.Is(err, db.ErrLeaseLost) {
				cancel(&LeaseExpiredError{JobID: job.ID, Cause: err})
				return
			}
			if err != nil && ctx.Err() == nil {
				s.logger.WarnContext(ctx, "failed to renew lease", slog.String("error", err.Error()))
			}
		}
	}
}

// execute is the pipeline body; artifacts are written as each stage succeeds
func (s *Scheduler) execute(ctx context.Context, job *types.Job) error {
	if err := s.ensureSourceArtifact(ctx, job); err != nil {
		return err
	}

	result, err := s.generator.Generate(ctx, generation.Request{
		Profile:        job.Payload.Profile,
		JobDescription: job.Payload.JobDescription,
		Mode:           job.Payload.Mode,
	}, func(stage string) {
		s.setStage(ctx, job, stage)
	})
	if err != nil {
		var failed *generation.FailedError
		if errors.As(err, &failed) {
			s.writeDiagnostic(ctx, job, types.StageDrafting, providerDiagnostic(failed))
		}
		return err
	}

	if err := s.storeGeneration(ctx, job, result); err != nil {
		return err
	}

	if err := s.checkCancelled(ctx, job); err != nil {
		return err
	}

	s.setStage(ctx, job, types.StageCompiling)
	out, err := s.compiler.Compile(ctx, []byte(result.Typeset))
	if err != nil {
		var compErr *compile.CompilationError
		if errors.As(err, &compErr) {
			s.metrics.ObserveCompile(string(compErr.Kind), 0)
			s.writeDiagnostic(ctx, job, types.StageCompiling, compileDiagnostic(compErr))
		}
		return err
	}
	s.metrics.ObserveCompile("ok", out.Duration)

	_, err = s.store.PutArtifact(ctx, types.NewArtifact{
		JobID:   job.ID,
		Type:    types.ArtifactRenderedOutput,
		Content: out.PDF,
		Metadata: map[string]any{
			"pages":         out.Pages,
			"size":          len(out.PDF),
			"source_digest": db.Digest([]byte(result.Typeset)),
			"duration_ms":   out.Duration.Milliseconds(),
		},
		Validated: out.Pages > 0,
	})
	if err != nil {
		return fmt.Errorf("failed to store rendered output: %w", err)
	}
	return nil
}

func (s *Scheduler) ensureSourceArtifact(ctx context.Context, job *types.Job) error {
	_, err := s.store.GetLatestArtifact(ctx, job.ID, types.ArtifactSourceJobDescription)
	if err == nil {
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("failed to check source artifact: %w", err)
	}

	var metadata map[string]any
	if _, meta, err := ingestion.CleanJobDescription(job.Payload.JobDescription); err == nil {
		metadata = meta.ToMap()
	}
	_, err = s.store.PutArtifact(ctx, types.NewArtifact{
		JobID:     job.ID,
		Type:      types.ArtifactSourceJobDescription,
		Content:   []byte(job.Payload.JobDescription),
		Metadata:  metadata,
		Validated: true,
	})
	if err != nil {
		return fmt.Errorf("failed to store job description: %w", err)
	}
	return nil
}

func (s *Scheduler) storeGeneration(ctx context.Context, job *types.Job, result *generation.Result) error {
	structured, err := json.MarshalIndent(result.Document, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode resume document: %w", err)
	}
	repairs := result.Repairs
	if repairs == nil {
		repairs = []string{}
	}
	_, err = s.store.PutArtifact(ctx, types.NewArtifact{
		JobID:   job.ID,
		Type:    types.ArtifactStructuredResume,
		Content: structured,
		Metadata: map[string]any{
			"provider":      result.Provider,
			"fallback_used": result.FallbackUsed,
			"attempts":      result.Attempts,
			"repairs":       repairs,
		},
		Validated: true,
	})
	if err != nil {
		return fmt.Errorf("failed to store structured resume: %w", err)
	}

	typeset := []byte(result.Typeset)
	_, err = s.store.PutArtifact(ctx, types.NewArtifact{
		JobID:   job.ID,
		Type:    types.ArtifactTypesetSource,
		Content: typeset,
		Metadata: map[string]any{
			"provider": result.Provider,
			"template": result.Template,
			"digest":   db.Digest(typeset),
		},
		Validated: true,
	})
	if err != nil {
		return fmt.Errorf("failed to store typeset source: %w", err)
	}
	return nil
}

func (s *Scheduler) checkCancelled(ctx context.Context, job *types.Job) error {
	current, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to check cancellation: %w", err)
	}
	if current.CancelRequested {
		return errCancelled
	}
	return nil
}

// setStage records a milestone; failures only lose progress detail
func (s *Scheduler) setStage(ctx context.Context, job *types.Job, stage string) {
	if err := s.store.UpdateStage(ctx, job.ID, s.cfg.WorkerID, stage); err != nil && ctx.Err() == nil {
		s.logger.WarnContext(ctx, "failed to record stage", slog.String("stage", stage), slog.String("error", err.Error()))
		return
	}
	s.logger.DebugContext(ctx, "stage reached", slog.String("stage", stage))
}

// writeDiagnostic persists failure detail before the retry decision; failures are logged only
func (s *Scheduler) writeDiagnostic(ctx context.Context, job *types.Job, stage, content string) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.store.PutArtifact(ctx, types.NewArtifact{
		JobID:   job.ID,
		Type:    types.ArtifactDiagnosticLog,
		Content: []byte(content),
		Metadata: map[string]any{
			"stage":   stage,
			"attempt": job.Attempts + 1,
		},
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to store diagnostic log", slog.String("stage", stage), slog.String("error", err.Error()))
	}
}

func providerDiagnostic(e *generation.FailedError) string {
	var b strings.Builder
	b.WriteString("generation failed on every provider\n")
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "\n[%s] kind=%s", f.Provider, f.Kind)
		if f.StatusCode != 0 {
			fmt.Fprintf(&b, " status=%d", f.StatusCode)
		}
		fmt.Fprintf(&b, "\nmessage: %s\n", f.Message)
		if f.Detail != "" {
			fmt.Fprintf(&b, "detail:\n%s\n", f.Detail)
		}
	}
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\nattempt provider=%s outcome=%s latency_ms=%d fallback=%t", a.Provider, a.Outcome, a.LatencyMS, a.Fallback)
	}
	b.WriteString("\n")
	return b.String()
}

func compileDiagnostic(e *compile.CompilationError) string {
	var b strings.Builder
	fmt.Fprintf(&b, "compilation failed: kind=%s\nmessage: %s\n", e.Kind, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, "cause: %v\n", e.Cause)
	}
	if e.LogOutput != "" {
		b.WriteString("\n--- compiler output ---\n")
		b.WriteString(e.LogOutput)
		if !strings.HasSuffix(e.LogOutput, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// finish writes the terminal or retry transition for a run that kept its lease
func (s *Scheduler) finish(ctx context.Context, job *types.Job, runErr error, started time.Time) error {
	now := s.now()
	s.metrics.ObserveRun(now.Sub(started))

	if runErr == nil {
		err := s.store.TransitionJob(ctx, job.ID, types.Transition{
			LeaseOwner: s.cfg.WorkerID,
			To:         types.JobStatusCompleted,
			Attempts:   job.Attempts,
		})
		if err != nil {
			return s.transitionErr(job, err)
		}
		s.logger.InfoContext(ctx, "job completed", slog.Duration("duration", now.Sub(started)))
		s.metrics.JobFinished(string(types.JobStatusCompleted), "")
		s.publishCurrent(ctx, events.JobCompleted, job)
		return nil
	}

	class, jobErr := Classify(runErr)
	jobErr.At = now.UTC()
	if jobErr.Stage == "" {
		jobErr.Stage = job.Stage
	}
	attempts := min(job.Attempts+1, job.MaxAttempts)
	to := nextStatus(class, attempts, job.MaxAttempts, job.LastError)

	t := types.Transition{
		LeaseOwner: s.cfg.WorkerID,
		To:         to,
		Attempts:   attempts,
		LastError:  jobErr,
	}
	if to == types.JobStatusRetrying {
		t.AvailableAt = now.Add(Backoff(attempts, s.cfg.BackoffBase, s.cfg.BackoffMax))
	}
	if err := s.store.TransitionJob(ctx, job.ID, t); err != nil {
		return s.transitionErr(job, err)
	}

	attrs := []any{
		slog.String("class", class.String()),
		slog.String("kind", string(jobErr.Kind)),
		slog.String("status", string(to)),
		slog.Int("attempts", attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.String("error", runErr.Error()),
	}
	switch {
	case class == ClassConflict:
		s.metrics.Conflict()
		s.logger.ErrorContext(ctx, "artifact version conflict; two workers ran the same job", attrs...)
	case to == types.JobStatusRetrying:
		s.logger.WarnContext(ctx, "job attempt failed; retrying", append(attrs, slog.Time("available_at", t.AvailableAt))...)
	default:
		s.logger.ErrorContext(ctx, "job failed", attrs...)
	}

	if to == types.JobStatusRetrying {
		s.metrics.JobRetried(string(jobErr.Kind))
		s.publishCurrent(ctx, events.JobRetrying, job)
	} else {
		s.metrics.JobFinished(string(to), string(jobErr.Kind))
		s.publishCurrent(ctx, events.JobFailed, job)
	}
	return runErr
}

func (s *Scheduler) transitionErr(job *types.Job, err error) error {
	if errors.Is(err, db.ErrLeaseLost) {
		return &LeaseExpiredError{JobID: job.ID, Cause: err}
	}
	return fmt.Errorf("failed to record job outcome: %w", err)
}

// publishCurrent re-reads the job so the event reflects the committed transition
func (s *Scheduler) publishCurrent(ctx context.Context, t events.Type, job *types.Job) {
	current, err := s.store.GetJob(ctx, job.ID)
	if err != nil {
		current = job
	}
	s.publish(ctx, t, current)
}
