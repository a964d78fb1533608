// Package events publishes job lifecycle notifications to a message broker.
// Delivery is best effort; the job table remains the source of truth.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// Type names a lifecycle event
type Type string

// Lifecycle events
const (
	JobSubmitted       Type = "job.submitted"
	JobStarted         Type = "job.started"
	JobRetrying        Type = "job.retrying"
	JobCompleted       Type = "job.completed"
	JobFailed          Type = "job.failed"
	JobCancelRequested Type = "job.cancel_requested"
)

// Event is one lifecycle notification
type Event struct {
	Type     Type            `json:"type"`
	JobID    uuid.UUID       `json:"job_id"`
	OwnerID  string          `json:"owner_id"`
	Status   types.JobStatus `json:"status"`
	Attempts int             `json:"attempts"`
	Kind     types.ErrorKind `json:"error_kind,omitempty"`
	At       time.Time       `json:"at"`
}

// FromJob builds an event describing job's current state
func FromJob(t Type, job *types.Job, at time.Time) Event {
	ev := Event{
		Type:     t,
		JobID:    job.ID,
		OwnerID:  job.OwnerID,
		Status:   job.Status,
		Attempts: job.Attempts,
		At:       at.UTC(),
	}
	if job.LastError != nil {
		ev.Kind = job.LastError.Kind
	}
	return ev
}

// Marshal encodes an event for the wire
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher sends events to a broker
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards every event
type Noop struct{}

// Publish implements Publisher
func (Noop) Publish(context.Context, Event) error { return nil }

// Close implements Publisher
func (Noop) Close() error { return nil }
