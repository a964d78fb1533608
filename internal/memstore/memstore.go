// Package memstore is an in-process implementation of the job and artifact stores.
// It backs tests and the single-process "memory" storage backend.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// Store keeps jobs and artifacts in memory behind a single mutex
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	jobs      map[uuid.UUID]*types.Job
	artifacts map[uuid.UUID][]types.Artifact
}

// New creates an empty store
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty store that reads time from now
func NewWithClock(now func() time.Time) *Store {
	return &Store{
		now:       now,
		jobs:      make(map[uuid.UUID]*types.Job),
		artifacts: make(map[uuid.UUID][]types.Artifact),
	}
}

// CreateJob inserts a new job at PENDING
func (s *Store) CreateJob(_ context.Context, in types.NewJob) (*types.Job, error) {
	payload, err := clonePayload(in.Payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := &types.Job{
		ID:          uuid.New(),
		OwnerID:     in.OwnerID,
		Status:      types.JobStatusPending,
		Priority:    in.Priority,
		MaxAttempts: in.MaxAttempts,
		Payload:     payload,
		Stage:       types.StageQueued,
		AvailableAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[job.ID] = job
	return copyJob(job), nil
}

// GetJob returns a job by ID or db.ErrNotFound
func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return copyJob(job), nil
}

// ClaimNextJob moves the best eligible queued job to PROCESSING
func (s *Store) ClaimNextJob(_ context.Context, leaseOwner string, lease time.Duration) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *types.Job
	for _, job := range s.jobs {
		if !job.Status.IsQueued() || job.AvailableAt.After(now) {
			continue
		}
		if best == nil || claimsBefore(job, best) {
			best = job
		}
	}
	if best == nil {
		return nil, nil
	}

	expires := now.Add(lease)
	best.Status = types.JobStatusProcessing
	best.LeaseOwner = leaseOwner
	best.LeasedAt = timePtr(now)
	best.LeaseExpiresAt = &expires
	if best.StartedAt == nil {
		best.StartedAt = timePtr(now)
	}
	best.UpdatedAt = now
	return copyJob(best), nil
}

// RenewLease extends a lease still held by leaseOwner
func (s *Store) RenewLease(_ context.Context, id uuid.UUID, leaseOwner string, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.leasedLocked(id, leaseOwner)
	if err != nil {
		return err
	}
	now := s.now()
	expires := now.Add(lease)
	job.LeaseExpiresAt = &expires
	job.UpdatedAt = now
	return nil
}

// UpdateStage records the current milestone of a leased job
func (s *Store) UpdateStage(_ context.Context, id uuid.UUID, leaseOwner, stage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.leasedLocked(id, leaseOwner)
	if err != nil {
		return err
	}
	job.Stage = stage
	job.UpdatedAt = s.now()
	return nil
}

// TransitionJob moves a leased PROCESSING job to t.To and releases the lease
func (s *Store) TransitionJob(_ context.Context, id uuid.UUID, t types.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.leasedLocked(id, t.LeaseOwner)
	if err != nil {
		return err
	}
	if t.Attempts > job.MaxAttempts {
		return fmt.Errorf("attempts %d exceed budget %d", t.Attempts, job.MaxAttempts)
	}

	now := s.now()
	job.Status = t.To
	job.Attempts = t.Attempts
	job.LastError = copyJobError(t.LastError)
	job.AvailableAt = now
	if !t.AvailableAt.IsZero() {
		job.AvailableAt = t.AvailableAt
	}
	releaseLease(job)
	if t.To == types.JobStatusCompleted {
		job.Stage = types.StageDone
	}
	job.CompletedAt = nil
	if t.To.IsTerminal() {
		job.CompletedAt = timePtr(now)
	}
	job.UpdatedAt = now
	return nil
}

// CancelQueuedJob fails a PENDING or RETRYING job; returns nil, nil otherwise
func (s *Store) CancelQueuedJob(_ context.Context, id uuid.UUID, reason *types.JobError) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || !job.Status.IsQueued() {
		return nil, nil
	}
	now := s.now()
	job.Status = types.JobStatusFailed
	job.LastError = copyJobError(reason)
	job.CompletedAt = timePtr(now)
	job.UpdatedAt = now
	return copyJob(job), nil
}

// RequestCancel flags a PROCESSING job; returns nil, nil otherwise
func (s *Store) RequestCancel(_ context.Context, id uuid.UUID) (*types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.Status != types.JobStatusProcessing {
		return nil, nil
	}
	job.CancelRequested = true
	job.UpdatedAt = s.now()
	return copyJob(job), nil
}

// ExpireLeases requeues or fails PROCESSING jobs whose lease lapsed, charging one attempt each.
// Jobs with a pending cancel request fail with cancelReason.
func (s *Store) ExpireLeases(_ context.Context, reason, cancelReason *types.JobError) ([]types.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expired []types.Job
	for _, job := range s.jobs {
		if job.Status != types.JobStatusProcessing || job.LeaseExpiresAt == nil || !job.LeaseExpiresAt.Before(now) {
			continue
		}
		exhausted := job.CancelRequested || job.Attempts+1 >= job.MaxAttempts
		job.Attempts = min(job.Attempts+1, job.MaxAttempts)
		if job.CancelRequested {
			job.LastError = copyJobError(cancelReason)
		} else {
			job.LastError = copyJobError(reason)
		}
		job.AvailableAt = now
		releaseLease(job)
		if exhausted {
			job.Status = types.JobStatusFailed
			job.CompletedAt = timePtr(now)
		} else {
			job.Status = types.JobStatusRetrying
		}
		job.UpdatedAt = now
		expired = append(expired, *copyJob(job))
	}
	return expired, nil
}

// AverageRunDuration averages completed_at - started_at over the most recent completed jobs
func (s *Store) AverageRunDuration(_ context.Context, sample int) (time.Duration, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completed []*types.Job
	for _, job := range s.jobs {
		if job.Status == types.JobStatusCompleted && job.StartedAt != nil && job.CompletedAt != nil {
			completed = append(completed, job)
		}
	}
	sort.Slice(completed, func(i, j int) bool {
		return completed[i].CompletedAt.After(*completed[j].CompletedAt)
	})
	if sample > 0 && len(completed) > sample {
		completed = completed[:sample]
	}
	if len(completed) == 0 {
		return 0, 0, nil
	}

	var total time.Duration
	for _, job := range completed {
		total += job.CompletedAt.Sub(*job.StartedAt)
	}
	return total / time.Duration(len(completed)), len(completed), nil
}

// CountJobsByStatus returns the number of jobs in each status
func (s *Store) CountJobsByStatus(_ context.Context) (map[types.JobStatus]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[types.JobStatus]int)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts, nil
}

func (s *Store) leasedLocked(id uuid.UUID, leaseOwner string) (*types.Job, error) {
	job, ok := s.jobs[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	if job.Status != types.JobStatusProcessing || job.LeaseOwner != leaseOwner {
		return nil, db.ErrLeaseLost
	}
	return job, nil
}

// claimsBefore orders queued jobs by priority desc, then creation time asc
func claimsBefore(a, b *types.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func releaseLease(job *types.Job) {
	job.LeaseOwner = ""
	job.LeasedAt = nil
	job.LeaseExpiresAt = nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func copyJob(job *types.Job) *types.Job {
	c := *job
	c.LastError = copyJobError(job.LastError)
	return &c
}

func copyJobError(e *types.JobError) *types.JobError {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// clonePayload deep-copies the payload through JSON, matching what a database round trip returns
func clonePayload(p types.JobPayload) (types.JobPayload, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return types.JobPayload{}, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	var out types.JobPayload
	if err := json.Unmarshal(data, &out); err != nil {
		return types.JobPayload{}, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	return out, nil
}
