package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonathan/resume-pipeline/internal/memstore"
	"github.com/jonathan/resume-pipeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_ProcessesQueuedJobs(t *testing.T) {
	store := memstore.New()
	generator := &fakeGenerator{}
	compiler := &fakeCompiler{}
	scheduler := NewScheduler(Deps{
		Store:     store,
		Generator: generator,
		Compiler:  compiler,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{WorkerID: "pool", LeaseDuration: time.Minute})

	var submitted []*types.Job
	for i := 0; i < 5; i++ {
		job, err := scheduler.Submit(context.Background(), "alice", testPayload(), i)
		require.NoError(t, err)
		submitted = append(submitted, job)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	pool := NewPool(scheduler, PoolConfig{Workers: 3, PollInterval: 10 * time.Millisecond, SweepInterval: 50 * time.Millisecond})
	go func() { done <- pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		counts, err := store.CountJobsByStatus(context.Background())
		return err == nil && counts[types.JobStatusCompleted] == len(submitted)
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}

	// every job ran exactly once
	assert.Equal(t, len(submitted), generator.Calls())
	assert.Equal(t, len(submitted), compiler.Calls())
	for _, job := range submitted {
		final, err := store.GetJob(context.Background(), job.ID)
		require.NoError(t, err)
		assert.Equal(t, types.JobStatusCompleted, final.Status)
		assert.Equal(t, 0, final.Attempts)
	}
}

func TestPool_JanitorRecoversExpiredLease(t *testing.T) {
	store := memstore.New()
	scheduler := NewScheduler(Deps{
		Store:     store,
		Generator: &fakeGenerator{},
		Compiler:  &fakeCompiler{},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, Config{WorkerID: "janitor-test", LeaseDuration: 20 * time.Millisecond})

	job, err := scheduler.Submit(context.Background(), "alice", testPayload(), 0)
	require.NoError(t, err)
	// a worker that claims and then disappears
	_, err = scheduler.ForWorker("crashed").ClaimNext(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool := NewPool(scheduler, PoolConfig{Workers: 1, PollInterval: 10 * time.Millisecond, SweepInterval: 10 * time.Millisecond})
	go func() { _ = pool.Run(ctx) }()

	require.Eventually(t, func() bool {
		current, err := store.GetJob(context.Background(), job.ID)
		return err == nil && current.Status == types.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	final, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, final.Attempts)
}
