package jobs

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonathan/resume-pipeline/internal/compile"
	"github.com/jonathan/resume-pipeline/internal/events"
	"github.com/jonathan/resume-pipeline/internal/generation"
	"github.com/jonathan/resume-pipeline/internal/memstore"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/types"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (*generation.Result, error)
}

func (g *fakeGenerator) Generate(_ context.Context, _ generation.Request, progress generation.ProgressFunc) (*generation.Result, error) {
	g.mu.Lock()
	g.calls++
	call := g.calls
	g.mu.Unlock()

	progress(types.StageDrafting)
	if g.fn != nil {
		res, err := g.fn(call)
		if err != nil {
			return nil, err
		}
		progress(types.StageFormatting)
		return res, nil
	}
	progress(types.StageFormatting)
	return okResult(), nil
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakeCompiler struct {
	mu    sync.Mutex
	calls int
	fn    func(call int) (*compile.Result, error)
}

func (c *fakeCompiler) Compile(_ context.Context, _ []byte) (*compile.Result, error) {
	c.mu.Lock()
	c.calls++
	call := c.calls
	c.mu.Unlock()

	if c.fn != nil {
		return c.fn(call)
	}
	return &compile.Result{PDF: []byte("%PDF-1.5 fake"), Pages: 1, Duration: 1200 * time.Millisecond}, nil
}

func (c *fakeCompiler) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

func okResult() *generation.Result {
	return &generation.Result{
		Document: &types.ResumeDocument{
			Contact: types.Contact{Name: "Ada Lovelace"},
			Summary: "Backend engineer.",
			Experience: []types.ExperienceEntry{
				{Company: "Acme", Role: "Engineer", Bullets: []string{"Shipped the scheduler"}},
			},
		},
		Typeset:  "\\documentclass{article}\\begin{document}Ada\\end{document}\n",
		Template: "resume",
		Provider: "gemini",
		Attempts: []generation.AttemptRecord{{Provider: "gemini", LatencyMS: 850, Outcome: "ok"}},
		Repairs:  []string{"summary: shortened from 80 to 60 words"},
	}
}

const testDescription = "We are hiring a backend engineer to build reliable Go services on Postgres and Kubernetes."

func testPayload() types.JobPayload {
	return types.JobPayload{
		Profile: types.ProfileSnapshot{
			Name:       "Ada Lovelace",
			Email:      "ada@example.com",
			ResumeText: "Ada Lovelace, backend engineer at Acme.",
		},
		JobDescription: testDescription,
	}
}

type fixture struct {
	store     Store
	mem       *memstore.Store
	clock     *clock
	generator *fakeGenerator
	compiler  *fakeCompiler
	publisher *recordingPublisher
	metrics   *observability.Metrics
	scheduler *Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)}
	mem := memstore.NewWithClock(c.Now)
	f := &fixture{
		store:     mem,
		mem:       mem,
		clock:     c,
		generator: &fakeGenerator{},
		compiler:  &fakeCompiler{},
		publisher: &recordingPublisher{},
		metrics:   observability.NewMetrics(),
	}
	f.build()
	return f
}

// build (re)creates the scheduler from the fixture's current collaborators
func (f *fixture) build() {
	f.scheduler = NewScheduler(Deps{
		Store:     f.store,
		Generator: f.generator,
		Compiler:  f.compiler,
		Publisher: f.publisher,
		Metrics:   f.metrics,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:     f.clock.Now,
	}, Config{
		WorkerID:      "worker-a",
		LeaseDuration: time.Minute,
		BackoffBase:   5 * time.Second,
		BackoffMax:    time.Minute,
	})
}

func (f *fixture) submit(t *testing.T, priority int) *types.Job {
	t.Helper()
	job, err := f.scheduler.Submit(context.Background(), "alice", testPayload(), priority)
	require.NoError(t, err)
	return job
}

func (f *fixture) claim(t *testing.T, s *Scheduler) *types.Job {
	t.Helper()
	job, err := s.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	return job
}

func (f *fixture) job(t *testing.T, job *types.Job) *types.Job {
	t.Helper()
	current, err := f.store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	return current
}

func (f *fixture) artifactTypes(t *testing.T, job *types.Job) []types.ArtifactType {
	t.Helper()
	infos, err := f.mem.ListArtifacts(context.Background(), job.ID)
	require.NoError(t, err)
	out := make([]types.ArtifactType, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Type)
	}
	return out
}
