// Package types provides type definitions for structured data used throughout the resume pipeline.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a generation job
type JobStatus string

// Job lifecycle states
const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusRetrying   JobStatus = "RETRYING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// IsTerminal reports whether no further transitions are possible from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsQueued reports whether a job in state s is eligible for claiming.
func (s JobStatus) IsQueued() bool {
	return s == JobStatusPending || s == JobStatusRetrying
}

// Coarse pipeline milestones recorded on the job row
const (
	StageQueued     = "queued"
	StageDrafting   = "drafting"
	StageFormatting = "formatting"
	StageCompiling  = "compiling"
	StageDone       = "done"
)

// GenerationMode selects how aggressively the base resume is tailored
type GenerationMode string

const (
	// ModeTailored rewrites content toward the job description
	ModeTailored GenerationMode = "tailored"
	// ModeConservative keeps the original wording and only reorders/selects
	ModeConservative GenerationMode = "conservative"
)

// JobPayload is the immutable input snapshot captured at submission time
type JobPayload struct {
	Profile        ProfileSnapshot `json:"profile" validate:"required"`
	JobDescription string          `json:"job_description" validate:"required"`
	Mode           GenerationMode  `json:"mode" validate:"omitempty,oneof=tailored conservative"`
}

// ErrorKind classifies a recorded job failure
type ErrorKind string

// Error kinds recorded in Job.LastError
const (
	ErrorKindValidation   ErrorKind = "validation"
	ErrorKindProvider     ErrorKind = "provider"
	ErrorKindDefect       ErrorKind = "generation_defect"
	ErrorKindCompilation  ErrorKind = "compilation"
	ErrorKindLeaseExpired ErrorKind = "lease_expired"
	ErrorKindCancelled    ErrorKind = "cancelled"
	ErrorKindConfig       ErrorKind = "config"
	ErrorKindConflict     ErrorKind = "conflict"
	ErrorKindInternal     ErrorKind = "internal"
)

// JobError is the human-readable failure summary stored on a job.
// Detailed output (compiler logs, provider bodies) lives in DIAGNOSTIC_LOG artifacts.
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Stage   string    `json:"stage,omitempty"`
	// Defect marks failures caused by unusable generated content
	Defect bool      `json:"defect,omitempty"`
	At     time.Time `json:"at"`
}

// Job is one unit of asynchronous resume-generation work
type Job struct {
	ID              uuid.UUID  `json:"id"`
	OwnerID         string     `json:"owner_id"`
	Status          JobStatus  `json:"status"`
	Priority        int        `json:"priority"`
	Attempts        int        `json:"attempts"`
	MaxAttempts     int        `json:"max_attempts"`
	Payload         JobPayload `json:"payload"`
	LastError       *JobError  `json:"last_error,omitempty"`
	Stage           string     `json:"stage"`
	CancelRequested bool       `json:"cancel_requested"`
	LeaseOwner      string     `json:"lease_owner,omitempty"`
	LeasedAt        *time.Time `json:"leased_at,omitempty"`
	LeaseExpiresAt  *time.Time `json:"lease_expires_at,omitempty"`
	AvailableAt     time.Time  `json:"available_at"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewJob is the input for inserting a job at PENDING
type NewJob struct {
	OwnerID     string
	Priority    int
	MaxAttempts int
	Payload     JobPayload
}

// Transition describes a compare-and-set move out of PROCESSING.
// It only applies while the job is PROCESSING and leased by LeaseOwner.
type Transition struct {
	LeaseOwner  string
	To          JobStatus
	Attempts    int
	LastError   *JobError
	AvailableAt time.Time
}
