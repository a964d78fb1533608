package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/compile"
	"github.com/jonathan/resume-pipeline/internal/generation"
	"github.com/jonathan/resume-pipeline/internal/jobs"
	"github.com/jonathan/resume-pipeline/internal/memstore"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/server/middleware"
	"github.com/jonathan/resume-pipeline/internal/server/ratelimit"
	"github.com/jonathan/resume-pipeline/internal/status"
	"github.com/jonathan/resume-pipeline/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ generation.Request, progress generation.ProgressFunc) (*generation.Result, error) {
	progress(types.StageDrafting)
	progress(types.StageFormatting)
	return &generation.Result{
		Document: &types.ResumeDocument{Contact: types.Contact{Name: "Ada Lovelace"}, Summary: "Backend engineer."},
		Typeset:  "\\documentclass{article}\\begin{document}Ada\\end{document}\n",
		Template: "resume",
		Provider: "gemini",
	}, nil
}

type stubCompiler struct{}

func (stubCompiler) Compile(context.Context, []byte) (*compile.Result, error) {
	return &compile.Result{PDF: []byte("%PDF-1.5 stub"), Pages: 1, Duration: time.Second}, nil
}

type testEnv struct {
	srv       *Server
	store     *memstore.Store
	scheduler *jobs.Scheduler
	metrics   *observability.Metrics
	handler   http.Handler
}

type envOption func(*Options)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	metrics := observability.NewMetrics()
	scheduler := jobs.NewScheduler(jobs.Deps{
		Store:     store,
		Generator: stubGenerator{},
		Compiler:  stubCompiler{},
		Metrics:   metrics,
		Logger:    logger,
	}, jobs.Config{WorkerID: "test-worker"})

	o := Options{
		Scheduler:         scheduler,
		Status:            status.NewService(store, status.Options{Logger: logger}),
		Metrics:           metrics,
		Logger:            logger,
		EventPollInterval: 10 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&o)
	}
	srv := New(o)
	t.Cleanup(srv.rateLimiter.Stop)

	return &testEnv{srv: srv, store: store, scheduler: scheduler, metrics: metrics, handler: srv.Handler()}
}

const testDescription = "We are hiring a backend engineer to build reliable Go services on Postgres and Kubernetes."

func submitBody() string {
	body, _ := json.Marshal(SubmitRequest{
		Profile: types.ProfileSnapshot{
			Name:       "Ada Lovelace",
			Email:      "ada@example.com",
			ResumeText: "Ada Lovelace, backend engineer at Acme.",
		},
		JobDescription: testDescription,
		Priority:       5,
	})
	return string(body)
}

func (e *testEnv) do(t *testing.T, method, path, owner, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if owner != "" {
		req.Header.Set(middleware.OwnerHeader, owner)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) submit(t *testing.T, owner string) uuid.UUID {
	t.Helper()
	w := e.do(t, http.MethodPost, "/jobs", owner, submitBody())
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.JobID
}

// runNext executes the next queued job synchronously
func (e *testEnv) runNext(t *testing.T) {
	t.Helper()
	job, err := e.scheduler.ClaimNext(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	require.NoError(t, e.scheduler.Run(context.Background(), job))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.CorrelationHeader))

	down := newTestEnv(t, func(o *Options) {
		o.Ready = func(context.Context) error { return errors.New("db unreachable") }
	})
	w = down.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "db unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.submit(t, "alice")

	w := env.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "resume_jobs_submitted_total")
}

func TestSubmit_RequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/jobs", "", submitBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJobHandlers_RejectMissingOwner(t *testing.T) {
	env := newTestEnv(t)
	id := env.submit(t, "alice")

	handlers := map[string]http.HandlerFunc{
		"status":    env.srv.handleStatus,
		"cancel":    env.srv.handleCancel,
		"artifacts": env.srv.handleListArtifacts,
		"artifact":  env.srv.handleArtifact,
		"events":    env.srv.handleEvents,
	}
	for name, h := range handlers {
		t.Run(name, func(t *testing.T) {
			// bypasses the owner middleware entirely
			req := httptest.NewRequest(http.MethodGet, "/jobs/"+id.String(), nil)
			req.SetPathValue("id", id.String())
			req.SetPathValue("type", "source_input")
			w := httptest.NewRecorder()
			h(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	job, err := env.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPending, job.Status, "job must be untouched")
}

func TestSubmit_Accepted(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/jobs", "alice", submitBody())
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.JobStatusPending, resp.Status)
	assert.Equal(t, "/jobs/"+resp.JobID.String(), w.Header().Get("Location"))

	job, err := env.store.GetJob(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, "alice", job.OwnerID)
	assert.Equal(t, 5, job.Priority)
}

func TestSubmit_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"not json", `{"profile":`, ""},
		{"unknown field", `{"profile":{},"job_description":"x","budget":10}`, ""},
		{"trailing data", submitBody() + `{}`, ""},
		{"short description", strings.Replace(submitBody(), testDescription, "Go dev", 1), "payload.jobdescription"},
		{"priority out of range", strings.Replace(submitBody(), `"priority":5`, `"priority":1000`, 1), "priority"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/jobs", "alice", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
			if tt.field != "" {
				require.NotEmpty(t, body.Fields)
				assert.Equal(t, tt.field, body.Fields[0].Field)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.submit(t, "alice")

	w := env.do(t, http.MethodGet, "/jobs/"+jobID.String(), "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var view status.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, types.JobStatusPending, view.Status)
	assert.Equal(t, 0, view.Progress)

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, "/jobs/"+jobID.String(), "mallory", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/jobs/"+uuid.NewString(), "alice", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/jobs/not-a-uuid", "alice", "").Code)

	env.runNext(t)
	w = env.do(t, http.MethodGet, "/jobs/"+jobID.String(), "alice", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &view))
	assert.Equal(t, types.JobStatusCompleted, view.Status)
	assert.Equal(t, 100, view.Progress)
}

func TestArtifacts(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.submit(t, "alice")
	base := "/jobs/" + jobID.String()

	// nothing rendered yet
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base+"/artifacts/RENDERED_OUTPUT", "alice", "").Code)

	env.runNext(t)

	w := env.do(t, http.MethodGet, base+"/artifacts", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list ArtifactListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	var listed []types.ArtifactType
	for _, info := range list.Artifacts {
		listed = append(listed, info.Type)
	}
	assert.ElementsMatch(t, []types.ArtifactType{
		types.ArtifactSourceJobDescription,
		types.ArtifactStructuredResume,
		types.ArtifactTypesetSource,
		types.ArtifactRenderedOutput,
	}, listed)

	w = env.do(t, http.MethodGet, base+"/artifacts/rendered_output", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, "1", w.Header().Get("X-Artifact-Version"))
	assert.Equal(t, "true", w.Header().Get("X-Artifact-Validated"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "%PDF-1.5 stub", w.Body.String())

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	w = env.do(t, http.MethodGet, base+"/artifacts/RENDERED_OUTPUT?version=1", "alice", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())

	w = env.do(t, http.MethodGet, base+"/artifacts/TYPESET_SOURCE", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-tex", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "\\documentclass")

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, base+"/artifacts/TYPESET_SOURCE?version=abc", "alice", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, base+"/artifacts/TYPESET_SOURCE?version=0", "alice", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base+"/artifacts/TYPESET_SOURCE?version=9", "alice", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base+"/artifacts/PHOTO", "alice", "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, base+"/artifacts/RENDERED_OUTPUT", "mallory", "").Code)
	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodGet, base+"/artifacts", "mallory", "").Code)
}

func TestCancel(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.submit(t, "alice")
	path := "/jobs/" + jobID.String() + "/cancel"

	assert.Equal(t, http.StatusForbidden, env.do(t, http.MethodPost, path, "mallory", "").Code)

	w := env.do(t, http.MethodPost, path, "alice", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var resp CancelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, types.JobStatusFailed, resp.Status)

	w = env.do(t, http.MethodPost, path, "alice", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	assert.Equal(t, http.StatusMethodNotAllowed, env.do(t, http.MethodGet, path, "alice", "").Code)
}

func TestEvents_StreamsUntilComplete(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.submit(t, "alice")

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/jobs/"+jobID.String()+"/events", nil)
	require.NoError(t, err)
	req.Header.Set(middleware.OwnerHeader, "alice")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	nextEvent := func() (string, status.View) {
		var name string
		var view status.View
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "event: "):
				name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &view))
			case line == "" && name != "":
				return name, view
			}
		}
	}

	name, view := nextEvent()
	assert.Equal(t, "status", name)
	assert.Equal(t, types.JobStatusPending, view.Status)

	env.runNext(t)

	for {
		name, view = nextEvent()
		if name == "complete" {
			break
		}
	}
	assert.Equal(t, types.JobStatusCompleted, view.Status)

	// the server closes the stream after the terminal event
	_, err = reader.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)
}

func TestEvents_Forbidden(t *testing.T) {
	env := newTestEnv(t)
	jobID := env.submit(t, "alice")

	w := env.do(t, http.MethodGet, "/jobs/"+jobID.String()+"/events", "mallory", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestRateLimit_Submissions(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:       true,
		DefaultLimit:  100,
		DefaultWindow: time.Minute,
		EndpointConfigs: []ratelimit.EndpointConfig{
			{Path: "/jobs", Method: "POST", Limit: 1, Window: time.Hour, Burst: 1},
		},
	})
	env := newTestEnv(t, func(o *Options) { o.Limiter = limiter })

	env.submit(t, "alice")

	w := env.do(t, http.MethodPost, "/jobs", "alice", submitBody())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	// limits are per owner
	env.submit(t, "bob")
}

func TestBearerTokens(t *testing.T) {
	tokens := setupTestJWTService(t, time.Hour)
	env := newTestEnv(t, func(o *Options) { o.Tokens = tokens.AsTokenValidator() })

	token, err := tokens.GenerateToken("alice")
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/jobs", "", submitBody(), "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusAccepted, w.Code)

	// the owner header is not trusted once tokens are configured
	w = env.do(t, http.MethodPost, "/jobs", "alice", submitBody())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodOptions, "/jobs", "", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
