package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/compile"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/events"
	"github.com/jonathan/resume-pipeline/internal/generation"
	"github.com/jonathan/resume-pipeline/internal/ingestion"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/status"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// Defaults for Config fields left unset
const (
	DefaultLeaseDuration        = 2 * time.Minute
	DefaultMaxAttempts          = 3
	DefaultBackoffBase          = 5 * time.Second
	DefaultBackoffMax           = 5 * time.Minute
	DefaultMinDescriptionLength = 50
	MinPriority                 = -100
	MaxPriority                 = 100
)

// Store is the durable job table and artifact store the scheduler drives.
// db.DB and memstore.Store both satisfy it.
type Store interface {
	CreateJob(ctx context.Context, in types.NewJob) (*types.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	ClaimNextJob(ctx context.Context, leaseOwner string, lease time.Duration) (*types.Job, error)
	RenewLease(ctx context.Context, id uuid.UUID, leaseOwner string, lease time.Duration) error
	UpdateStage(ctx context.Context, id uuid.UUID, leaseOwner, stage string) error
	TransitionJob(ctx context.Context, id uuid.UUID, t types.Transition) error
	CancelQueuedJob(ctx context.Context, id uuid.UUID, reason *types.JobError) (*types.Job, error)
	RequestCancel(ctx context.Context, id uuid.UUID) (*types.Job, error)
	ExpireLeases(ctx context.Context, reason, cancelReason *types.JobError) ([]types.Job, error)
	CountJobsByStatus(ctx context.Context) (map[types.JobStatus]int, error)
	PutArtifact(ctx context.Context, in types.NewArtifact) (*types.Artifact, error)
	GetLatestArtifact(ctx context.Context, jobID uuid.UUID, artifactType types.ArtifactType) (*types.Artifact, error)
}

// Generator produces a typeset resume; *generation.Orchestrator satisfies it
type Generator interface {
	Generate(ctx context.Context, req generation.Request, progress generation.ProgressFunc) (*generation.Result, error)
}

// Compiler turns typeset source into a rendered document; *compile.Compiler satisfies it
type Compiler interface {
	Compile(ctx context.Context, source []byte) (*compile.Result, error)
}

// Config tunes scheduling and retry behavior
type Config struct {
	WorkerID             string
	LeaseDuration        time.Duration
	MaxAttempts          int
	BackoffBase          time.Duration
	BackoffMax           time.Duration
	MinDescriptionLength int
}

func (c Config) withDefaults() Config {
	if c.WorkerID == "" {
		c.WorkerID = "worker-" + uuid.NewString()[:8]
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = DefaultLeaseDuration
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = DefaultBackoffMax
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	if c.MinDescriptionLength <= 0 {
		c.MinDescriptionLength = DefaultMinDescriptionLength
	}
	return c
}

// Deps are the collaborators a Scheduler needs. Generator and Compiler may be nil
// for processes that only submit and cancel.
type Deps struct {
	Store     Store
	Generator Generator
	Compiler  Compiler
	Publisher events.Publisher
	Metrics   *observability.Metrics
	Logger    *slog.Logger
	Clock     func() time.Time
}

// Scheduler owns the job lifecycle. All job mutations go through the store's
// atomic claim and compare-and-set operations.
type Scheduler struct {
	store     Store
	generator Generator
	compiler  Compiler
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
	validate  *validator.Validate
	cfg       Config
}

// NewScheduler creates a Scheduler
func NewScheduler(deps Deps, cfg Config) *Scheduler {
	if deps.Publisher == nil {
		deps.Publisher = events.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Scheduler{
		store:     deps.Store,
		generator: deps.Generator,
		compiler:  deps.Compiler,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       deps.Clock,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		cfg:       cfg.withDefaults(),
	}
}

// WorkerID returns the lease owner name this scheduler claims jobs under
func (s *Scheduler) WorkerID() string {
	return s.cfg.WorkerID
}

// ForWorker returns a scheduler sharing all collaborators but claiming under workerID
func (s *Scheduler) ForWorker(workerID string) *Scheduler {
	c := *s
	c.cfg.WorkerID = workerID
	return &c
}

// Config returns the effective configuration
func (s *Scheduler) Config() Config {
	return s.cfg
}

type submission struct {
	OwnerID  string           `validate:"required,max=255"`
	Priority int              `validate:"min=-100,max=100"`
	Payload  types.JobPayload `validate:"required"`
}

// Submit cleans and validates a request and enqueues it at PENDING
func (s *Scheduler) Submit(ctx context.Context, ownerID string, payload types.JobPayload, priority int) (*types.Job, error) {
	cleaned, meta, err := ingestion.CleanJobDescription(payload.JobDescription)
	if err != nil {
		verr := &ValidationError{}
		verr.add("payload.jobdescription", err.Error())
		return nil, verr
	}
	payload.JobDescription = cleaned
	payload.Profile.Name = strings.TrimSpace(payload.Profile.Name)
	payload.Profile.ResumeText = strings.TrimSpace(payload.Profile.ResumeText)
	if payload.Mode == "" {
		payload.Mode = types.ModeTailored
	}

	sub := submission{OwnerID: ownerID, Priority: priority, Payload: payload}
	verr := &ValidationError{}
	if err := s.validate.StructCtx(ctx, sub); err != nil {
		verr = fromValidator(err)
	}
	if cleaned != "" && utf8.RuneCountInString(cleaned) < s.cfg.MinDescriptionLength {
		verr.add("payload.jobdescription", fmt.Sprintf("must be at least %d characters", s.cfg.MinDescriptionLength))
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	job, err := s.store.CreateJob(ctx, types.NewJob{
		OwnerID:     ownerID,
		Priority:    priority,
		MaxAttempts: s.cfg.MaxAttempts,
		Payload:     payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.logger.InfoContext(observability.WithJobID(ctx, job.ID.String()), "job submitted",
		slog.String("owner_id", ownerID),
		slog.Int("priority", priority),
		slog.String("mode", string(payload.Mode)),
		slog.String("description_format", meta.Format),
		slog.Bool("description_truncated", meta.Truncated),
	)
	s.metrics.JobSubmitted()
	s.publish(ctx, events.JobSubmitted, job)
	return job, nil
}

// ClaimNext leases the highest-priority eligible queued job; nil, nil when none is ready
func (s *Scheduler) ClaimNext(ctx context.Context) (*types.Job, error) {
	job, err := s.store.ClaimNextJob(ctx, s.cfg.WorkerID, s.cfg.LeaseDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return nil, nil
	}
	s.logger.InfoContext(s.jobContext(ctx, job), "job claimed",
		slog.Int("attempts", job.Attempts),
		slog.Int("priority", job.Priority),
	)
	s.publish(ctx, events.JobStarted, job)
	return job, nil
}

// Cancel fails a queued job immediately or flags a running job for cooperative cancellation.
// An empty ownerID is a trusted operator and skips the ownership check.
func (s *Scheduler) Cancel(ctx context.Context, ownerID string, jobID uuid.UUID) (*types.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, status.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if ownerID != "" && job.OwnerID != ownerID {
		return nil, fmt.Errorf("job %s: %w", jobID, status.ErrForbidden)
	}
	if job.Status.IsTerminal() {
		return job, ErrAlreadyTerminal
	}

	ctx = observability.WithJobID(ctx, jobID.String())
	if job.Status.IsQueued() {
		reason := &types.JobError{Kind: types.ErrorKindCancelled, Message: "cancelled before it started", At: s.now().UTC()}
		cancelled, err := s.store.CancelQueuedJob(ctx, jobID, reason)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel job: %w", err)
		}
		if cancelled != nil {
			s.logger.InfoContext(ctx, "queued job cancelled")
			s.metrics.JobFinished(string(types.JobStatusFailed), string(types.ErrorKindCancelled))
			s.publish(ctx, events.JobFailed, cancelled)
			return cancelled, nil
		}
		// claimed in the meantime; fall through to the cooperative path
	}

	flagged, err := s.store.RequestCancel(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to request cancellation: %w", err)
	}
	if flagged != nil {
		s.logger.InfoContext(ctx, "cancellation requested for running job")
		s.publish(ctx, events.JobCancelRequested, flagged)
		return flagged, nil
	}

	// the run finished between our read and the flag
	current, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if current.Status.IsTerminal() {
		return current, ErrAlreadyTerminal
	}
	return s.Cancel(ctx, ownerID, jobID)
}

// SweepExpiredLeases requeues or fails PROCESSING jobs whose worker stopped renewing.
// Each recovered job is charged exactly one attempt.
func (s *Scheduler) SweepExpiredLeases(ctx context.Context) (int, error) {
	reason := &types.JobError{
		Kind:    types.ErrorKindLeaseExpired,
		Message: "worker stopped responding; the attempt was abandoned",
		At:      s.now().UTC(),
	}
	cancelReason := &types.JobError{
		Kind:    types.ErrorKindCancelled,
		Message: "cancelled while running; the worker stopped before acknowledging",
		At:      reason.At,
	}
	expired, err := s.store.ExpireLeases(ctx, reason, cancelReason)
	if err != nil {
		return 0, fmt.Errorf("failed to expire leases: %w", err)
	}
	for i := range expired {
		job := &expired[i]
		jctx := s.jobContext(ctx, job)
		s.logger.WarnContext(jctx, "lease expired",
			slog.String("status", string(job.Status)),
			slog.Int("attempts", job.Attempts),
			slog.Int("max_attempts", job.MaxAttempts),
		)
		if job.Status == types.JobStatusFailed {
			kind := types.ErrorKindLeaseExpired
			if job.LastError != nil {
				kind = job.LastError.Kind
			}
			s.metrics.JobFinished(string(job.Status), string(kind))
			s.publish(ctx, events.JobFailed, job)
		} else {
			s.metrics.JobRetried(string(types.ErrorKindLeaseExpired))
			s.publish(ctx, events.JobRetrying, job)
		}
	}
	s.metrics.LeasesExpired(len(expired))
	return len(expired), nil
}

// RefreshQueueMetrics publishes job counts per status
func (s *Scheduler) RefreshQueueMetrics(ctx context.Context) error {
	if s.metrics == nil {
		return nil
	}
	counts, err := s.store.CountJobsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count jobs: %w", err)
	}
	byName := make(map[string]int, len(counts))
	for st, n := range counts {
		byName[string(st)] = n
	}
	s.metrics.SetQueueDepth(byName)
	return nil
}

func (s *Scheduler) publish(ctx context.Context, t events.Type, job *types.Job) {
	if err := s.publisher.Publish(ctx, events.FromJob(t, job, s.now())); err != nil {
		s.logger.WarnContext(ctx, "failed to publish job event",
			slog.String("event", string(t)),
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Scheduler) jobContext(ctx context.Context, job *types.Job) context.Context {
	ctx = observability.WithJobID(ctx, job.ID.String())
	return observability.WithWorkerID(ctx, s.cfg.WorkerID)
}
