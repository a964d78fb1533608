package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob() *types.Job {
	return &types.Job{
		ID:       uuid.MustParse("0b0c4bd2-1f0e-4bb2-9a51-7d0cf2f7c111"),
		OwnerID:  "alice",
		Status:   types.JobStatusRetrying,
		Attempts: 1,
		LastError: &types.JobError{
			Kind:    types.ErrorKindCompilation,
			Message: "compiler timed out",
		},
	}
}

func TestFromJob(t *testing.T) {
	at := time.Date(2025, 5, 1, 8, 0, 0, 0, time.FixedZone("X", 3600))
	ev := FromJob(JobRetrying, testJob(), at)

	assert.Equal(t, JobRetrying, ev.Type)
	assert.Equal(t, "alice", ev.OwnerID)
	assert.Equal(t, types.JobStatusRetrying, ev.Status)
	assert.Equal(t, 1, ev.Attempts)
	assert.Equal(t, types.ErrorKindCompilation, ev.Kind)
	assert.Equal(t, time.UTC, ev.At.Location())
}

func TestEvent_Marshal(t *testing.T) {
	ev := FromJob(JobCompleted, &types.Job{ID: uuid.New(), OwnerID: "bob", Status: types.JobStatusCompleted}, time.Now())
	body, err := ev.Marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "job.completed", decoded["type"])
	assert.Equal(t, "COMPLETED", decoded["status"])
	assert.NotContains(t, decoded, "error_kind")
}

func TestPublishing(t *testing.T) {
	ev := FromJob(JobFailed, testJob(), time.Now())
	body, _ := ev.Marshal()
	msg := publishing(ev, body)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "job.failed", msg.Type)
	assert.Equal(t, ev.JobID.String(), msg.Headers["job_id"])
	assert.NotEmpty(t, msg.MessageId)
	assert.Equal(t, body, msg.Body)
}

func TestNoop(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}

func TestNSQPublisher_CancelledContext(t *testing.T) {
	p, err := NewNSQPublisher("127.0.0.1:4150", "resume-jobs")
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Publish(ctx, FromJob(JobSubmitted, testJob(), time.Now())), context.Canceled)
}
