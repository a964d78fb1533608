// Package status is the read-only query surface over jobs and their artifacts.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/types"
)

var (
	// ErrNotFound is returned for unknown jobs, artifact types or versions
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller does not own the job
	ErrForbidden = errors.New("forbidden")
)

// DefaultExpectedDuration is used for progress estimates before any job has completed
const DefaultExpectedDuration = 45 * time.Second

const (
	averageSample   = 50
	averageCacheTTL = 30 * time.Second
	maxRunningPct   = 95
)

// stageFloor is the minimum progress reported once a stage is reached
var stageFloor = map[string]int{
	types.StageDrafting:   10,
	types.StageFormatting: 50,
	types.StageCompiling:  75,
}

// Reader is the committed state the service reads
type Reader interface {
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	AverageRunDuration(ctx context.Context, sample int) (time.Duration, int, error)
	GetLatestArtifact(ctx context.Context, jobID uuid.UUID, artifactType types.ArtifactType) (*types.Artifact, error)
	GetArtifact(ctx context.Context, jobID uuid.UUID, artifactType types.ArtifactType, version int) (*types.Artifact, error)
	ListArtifacts(ctx context.Context, jobID uuid.UUID) ([]types.ArtifactInfo, error)
}

// ErrorSummary is the failure shown to callers
type ErrorSummary struct {
	Kind    types.ErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// View is a point-in-time projection of a job
type View struct {
	JobID           uuid.UUID       `json:"job_id"`
	Status          types.JobStatus `json:"status"`
	Stage           string          `json:"stage"`
	Progress        int             `json:"progress"`
	Attempts        int             `json:"attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	CancelRequested bool            `json:"cancel_requested,omitempty"`
	Error           *ErrorSummary   `json:"error,omitempty"`
	NextAttemptAt   *time.Time      `json:"next_attempt_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// Options configures a Service
type Options struct {
	Cache           ArtifactCache
	Clock           func() time.Time
	Logger          *slog.Logger
	DefaultDuration time.Duration
}

// Service answers status and artifact queries
type Service struct {
	store           Reader
	cache           ArtifactCache
	now             func() time.Time
	logger          *slog.Logger
	defaultDuration time.Duration

	mu        sync.Mutex
	avg       time.Duration
	avgLoaded time.Time
}

// NewService creates a Service
func NewService(store Reader, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultExpectedDuration
	}
	return &Service{
		store:           store,
		cache:           opts.Cache,
		now:             opts.Clock,
		logger:          opts.Logger,
		defaultDuration: opts.DefaultDuration,
	}
}

// Authorize loads a job and checks that callerID owns it.
// An empty callerID is a trusted operator and skips the ownership check.
func (s *Service) Authorize(ctx context.Context, callerID string, jobID uuid.UUID) (*types.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if callerID != "" && job.OwnerID != callerID {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrForbidden)
	}
	return job, nil
}

// JobStatus returns the caller's view of a job
func (s *Service) JobStatus(ctx context.Context, callerID string, jobID uuid.UUID) (*View, error) {
	job, err := s.Authorize(ctx, callerID, jobID)
	if err != nil {
		return nil, err
	}
	return s.ViewOf(ctx, job), nil
}

// ViewOf projects an already loaded job
func (s *Service) ViewOf(ctx context.Context, job *types.Job) *View {
	v := &View{
		JobID:           job.ID,
		Status:          job.Status,
		Stage:           job.Stage,
		Attempts:        job.Attempts,
		MaxAttempts:     job.MaxAttempts,
		CancelRequested: job.CancelRequested,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		CompletedAt:     job.CompletedAt,
	}
	if job.Status == types.JobStatusRetrying {
		at := job.AvailableAt
		v.NextAttemptAt = &at
	}
	if job.LastError != nil && job.Status != types.JobStatusCompleted {
		v.Error = &ErrorSummary{Kind: job.LastError.Kind, Message: job.LastError.Message}
	}
	v.Progress = s.progress(ctx, job)
	return v
}

// progress is a best-effort estimate; it is never used for control flow
func (s *Service) progress(ctx context.Context, job *types.Job) int {
	switch job.Status {
	case types.JobStatusCompleted:
		return 100
	case types.JobStatusProcessing:
	default:
		return 0
	}

	pct := 0
	if job.LeasedAt != nil {
		elapsed := s.now().Sub(*job.LeasedAt)
		if avg := s.expectedDuration(ctx); avg > 0 && elapsed > 0 {
			pct = int(elapsed * 100 / avg)
		}
	}
	if floor := stageFloor[job.Stage]; pct < floor {
		pct = floor
	}
	if pct > maxRunningPct {
		pct = maxRunningPct
	}
	return pct
}

func (s *Service) expectedDuration(ctx context.Context) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.avgLoaded.IsZero() && s.now().Sub(s.avgLoaded) < averageCacheTTL {
		return s.avg
	}

	avg, n, err := s.store.AverageRunDuration(ctx, averageSample)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to load average run duration", "error", err)
		return s.defaultDuration
	}
	if n == 0 || avg <= 0 {
		avg = s.defaultDuration
	}
	s.avg, s.avgLoaded = avg, s.now()
	return avg
}

// FetchArtifact returns one artifact version, or the latest when version is nil
func (s *Service) FetchArtifact(ctx context.Context, callerID string, jobID uuid.UUID, artifactType types.ArtifactType, version *int) (*types.Artifact, error) {
	if _, err := s.Authorize(ctx, callerID, jobID); err != nil {
		return nil, err
	}

	if version == nil {
		a, err := s.store.GetLatestArtifact(ctx, jobID, artifactType)
		if err != nil {
			return nil, s.artifactErr(err, jobID, artifactType)
		}
		s.cacheSet(ctx, a)
		return a, nil
	}

	if *version < 1 {
		return nil, fmt.Errorf("artifact %s v%d: %w", artifactType, *version, ErrNotFound)
	}
	if s.cache != nil {
		if a, ok := s.cache.Get(ctx, jobID, artifactType, *version); ok {
			return a, nil
		}
	}
	a, err := s.store.GetArtifact(ctx, jobID, artifactType, *version)
	if err != nil {
		return nil, s.artifactErr(err, jobID, artifactType)
	}
	s.cacheSet(ctx, a)
	return a, nil
}

// ListArtifacts returns artifact metadata ordered by type and version
func (s *Service) ListArtifacts(ctx context.Context, callerID string, jobID uuid.UUID) ([]types.ArtifactInfo, error) {
	if _, err := s.Authorize(ctx, callerID, jobID); err != nil {
		return nil, err
	}
	infos, err := s.store.ListArtifacts(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	if infos == nil {
		infos = []types.ArtifactInfo{}
	}
	return infos, nil
}

func (s *Service) cacheSet(ctx context.Context, a *types.Artifact) {
	if s.cache != nil {
		s.cache.Set(ctx, a)
	}
}

func (s *Service) artifactErr(err error, jobID uuid.UUID, artifactType types.ArtifactType) error {
	if errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("artifact %s for job %s: %w", artifactType, jobID, ErrNotFound)
	}
	return fmt.Errorf("failed to load artifact: %w", err)
}
