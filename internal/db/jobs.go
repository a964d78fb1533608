package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/resume-pipeline/internal/types"
)

const jobColumns = `id, owner_id, status, priority, attempts, max_attempts, payload, last_error,
	stage, cancel_requested, lease_owner, leased_at, lease_expires_at, available_at,
	created_at, started_at, completed_at, updated_at`

// CreateJob inserts a new job at PENDING
func (db *DB) CreateJob(ctx context.Context, in types.NewJob) (*types.Job, error) {
	payload, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	row := db.pool.QueryRow(ctx,
		`INSERT INTO pipeline_jobs (owner_id, priority, max_attempts, payload, status, stage)
		 VALUES ($1, $2, $3, $4, 'PENDING', 'queued')
		 RETURNING `+jobColumns,
		in.OwnerID, in.Priority, in.MaxAttempts, payload,
	)
	job, err := scanJob(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// GetJob returns a job by ID or ErrNotFound
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM pipeline_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ClaimNextJob atomically moves the best eligible queued job to PROCESSING under a lease.
// Returns nil, nil when nothing is eligible.
func (db *DB) ClaimNextJob(ctx context.Context, leaseOwner string, lease time.Duration) (*types.Job, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE pipeline_jobs
		 SET status = 'PROCESSING',
		     lease_owner = $1,
		     leased_at = NOW(),
		     lease_expires_at = NOW() + make_interval(secs => $2::float8),
		     started_at = COALESCE(started_at, NOW()),
		     updated_at = NOW()
		 WHERE id = (
		     SELECT id FROM pipeline_jobs
		     WHERE status IN ('PENDING', 'RETRYING') AND available_at <= NOW()
		     ORDER BY priority DESC, created_at ASC, id ASC
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+jobColumns,
		leaseOwner, lease.Seconds(),
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// RenewLease extends the lease of a job still held by leaseOwner
func (db *DB) RenewLease(ctx context.Context, id uuid.UUID, leaseOwner string, lease time.Duration) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE pipeline_jobs
		 SET lease_expires_at = NOW() + make_interval(secs => $3::float8), updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING' AND lease_owner = $2`,
		id, leaseOwner, lease.Seconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to renew lease: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// UpdateStage records the current pipeline milestone for a leased job
func (db *DB) UpdateStage(ctx context.Context, id uuid.UUID, leaseOwner, stage string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE pipeline_jobs SET stage = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING' AND lease_owner = $2`,
		id, leaseOwner, stage,
	)
	if err != nil {
		return fmt.Errorf("failed to update stage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// TransitionJob moves a PROCESSING job held by t.LeaseOwner to t.To, releasing the lease
func (db *DB) TransitionJob(ctx context.Context, id uuid.UUID, t types.Transition) error {
	lastErr, err := marshalJobError(t.LastError)
	if err != nil {
		return err
	}
	var availableAt *time.Time
	if !t.AvailableAt.IsZero() {
		availableAt = &t.AvailableAt
	}

	tag, err := db.pool.Exec(ctx,
		`UPDATE pipeline_jobs
		 SET status = $3::text,
		     attempts = $4,
		     last_error = $5,
		     available_at = COALESCE($6, NOW()),
		     lease_owner = NULL,
		     leased_at = NULL,
		     lease_expires_at = NULL,
		     stage = CASE WHEN $3::text = 'COMPLETED' THEN 'done' ELSE stage END,
		     completed_at = CASE WHEN $3::text IN ('COMPLETED', 'FAILED') THEN NOW() ELSE NULL END,
		     updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING' AND lease_owner = $2`,
		id, t.LeaseOwner, string(t.To), t.Attempts, lastErr, availableAt,
	)
	if err != nil {
		return fmt.Errorf("failed to transition job to %s: %w", t.To, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// CancelQueuedJob fails a PENDING or RETRYING job. Returns nil, nil if the job is not queued.
func (db *DB) CancelQueuedJob(ctx context.Context, id uuid.UUID, reason *types.JobError) (*types.Job, error) {
	lastErr, err := marshalJobError(reason)
	if err != nil {
		return nil, err
	}
	row := db.pool.QueryRow(ctx,
		`UPDATE pipeline_jobs
		 SET status = 'FAILED', last_error = $2, completed_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND status IN ('PENDING', 'RETRYING')
		 RETURNING `+jobColumns,
		id, lastErr,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	return job, nil
}

// RequestCancel flags a PROCESSING job for cooperative cancellation. Returns nil, nil if not PROCESSING.
func (db *DB) RequestCancel(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE pipeline_jobs SET cancel_requested = TRUE, updated_at = NOW()
		 WHERE id = $1 AND status = 'PROCESSING'
		 RETURNING `+jobColumns,
		id,
	)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to request cancellation: %w", err)
	}
	return job, nil
}

// ExpireLeases requeues or fails every PROCESSING job whose lease has lapsed.
// Each expired job is charged exactly one attempt. Jobs with a pending cancel
// request fail with cancelReason instead of reason.
func (db *DB) ExpireLeases(ctx context.Context, reason, cancelReason *types.JobError) ([]types.Job, error) {
	lastErr, err := marshalJobError(reason)
	if err != nil {
		return nil, err
	}
	cancelErr, err := marshalJobError(cancelReason)
	if err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx,
		`UPDATE pipeline_jobs
		 SET attempts = LEAST(attempts + 1, max_attempts),
		     status = CASE WHEN cancel_requested OR attempts + 1 >= max_attempts THEN 'FAILED' ELSE 'RETRYING' END,
		     completed_at = CASE WHEN cancel_requested OR attempts + 1 >= max_attempts THEN NOW() ELSE NULL END,
		     last_error = CASE WHEN cancel_requested THEN $2::jsonb ELSE $1::jsonb END,
		     available_at = NOW(),
		     lease_owner = NULL,
		     leased_at = NULL,
		     lease_expires_at = NULL,
		     updated_at = NOW()
		 WHERE status = 'PROCESSING' AND lease_expires_at < NOW()
		 RETURNING `+jobColumns,
		lastErr, cancelErr,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to expire leases: %w", err)
	}
	jobs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Job, error) {
		job, err := scanJob(row)
		if err != nil {
			return types.Job{}, err
		}
		return *job, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read expired jobs: %w", err)
	}
	return jobs, nil
}

// AverageRunDuration returns the mean wall-clock duration of the most recent completed jobs
// and how many jobs the average covers.
func (db *DB) AverageRunDuration(ctx context.Context, sample int) (time.Duration, int, error) {
	var seconds float64
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COALESCE(AVG(EXTRACT(EPOCH FROM (completed_at - started_at))), 0)::float8, COUNT(*)
		 FROM (
		     SELECT completed_at, started_at FROM pipeline_jobs
		     WHERE status = 'COMPLETED' AND started_at IS NOT NULL AND completed_at IS NOT NULL
		     ORDER BY completed_at DESC
		     LIMIT $1
		 ) recent`,
		sample,
	).Scan(&seconds, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute average run duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), count, nil
}

// CountJobsByStatus returns the number of jobs in each status
func (db *DB) CountJobsByStatus(ctx context.Context) (map[types.JobStatus]int, error) {
	rows, err := db.pool.Query(ctx, `SELECT status, COUNT(*) FROM pipeline_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[types.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

func scanJob(row pgx.Row) (*types.Job, error) {
	var (
		job        types.Job
		status     string
		payload    []byte
		lastErr    []byte
		leaseOwner *string
	)
	err := row.Scan(
		&job.ID, &job.OwnerID, &status, &job.Priority, &job.Attempts, &job.MaxAttempts,
		&payload, &lastErr, &job.Stage, &job.CancelRequested, &leaseOwner,
		&job.LeasedAt, &job.LeaseExpiresAt, &job.AvailableAt,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = types.JobStatus(status)
	if leaseOwner != nil {
		job.LeaseOwner = *leaseOwner
	}
	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	if len(lastErr) > 0 {
		job.LastError = &types.JobError{}
		if err := json.Unmarshal(lastErr, job.LastError); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job error: %w", err)
		}
	}
	return &job, nil
}

func marshalJobError(e *types.JobError) (any, error) {
	if e == nil {
		return nil, nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job error: %w", err)
	}
	return data, nil
}
