package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonathan/resume-pipeline/internal/config"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDescription = "We are hiring a backend engineer to build reliable Go services on Postgres and own the job scheduler."

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTokenCommand(t *testing.T) {
	memoryEnv(t)
	t.Setenv("JWT_SECRET", "a-test-secret-that-is-long-enough")

	stdout, _, err := executeCommand(t, "", "token", "--owner", "alice", "--expiration", "10m")
	require.NoError(t, err)

	token := strings.TrimSpace(stdout)
	jwtCfg, err := config.NewJWTConfig("a-test-secret-that-is-long-enough", time.Hour)
	require.NoError(t, err)
	claims, err := server.NewJWTService(jwtCfg).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.OwnerID())
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), claims.ExpiresAt.Time, time.Minute)
}

func TestTokenCommand_RequiresSecret(t *testing.T) {
	memoryEnv(t)

	_, _, err := executeCommand(t, "", "token", "--owner", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestSubmitCommand(t *testing.T) {
	memoryEnv(t)
	resume := writeFile(t, "resume.txt", "Alice Doe\nSenior engineer, eight years of Go.")

	stdout, _, err := executeCommand(t, testDescription,
		"submit", "--owner", "alice", "--resume", resume, "--name", "Alice Doe", "--job", "-", "--priority", "7")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Job submitted:")
	assert.Contains(t, stdout, "PENDING")
	assert.Contains(t, stdout, "Priority: 7")
}

func TestSubmitCommand_ProfileJSON(t *testing.T) {
	memoryEnv(t)
	profile := writeFile(t, "profile.json", `{"name":"Alice Doe","email":"alice@example.com","resume_text":"Senior engineer"}`)
	job := writeFile(t, "job.txt", testDescription)

	stdout, _, err := executeCommand(t, "", "submit", "--owner", "alice", "--profile", profile, "--job", job, "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"owner_id": "alice"`)
	assert.Contains(t, stdout, `"email": "alice@example.com"`)
}

func TestSubmitCommand_ValidationError(t *testing.T) {
	memoryEnv(t)
	resume := writeFile(t, "resume.txt", "Alice Doe")

	_, _, err := executeCommand(t, "Go dev", "submit", "--owner", "alice", "--resume", resume, "--name", "Alice", "--job", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jobdescription")
}

func TestSubmitCommand_NeedsProfileSource(t *testing.T) {
	memoryEnv(t)

	_, _, err := executeCommand(t, testDescription, "submit", "--owner", "alice", "--job", "-")
	require.Error(t, err)
}

func TestMigrateCommand_RequiresPostgres(t *testing.T) {
	memoryEnv(t)

	_, _, err := executeCommand(t, "", "migrate", "version")
	assert.ErrorIs(t, err, errNoDatabase)
}

func TestWorkerCommand_RejectsMemoryStore(t *testing.T) {
	memoryEnv(t)

	_, _, err := executeCommand(t, "", "worker")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORE_BACKEND=postgres")
}

func TestStatusCommand_InvalidID(t *testing.T) {
	memoryEnv(t)

	_, _, err := executeCommand(t, "", "status", "not-a-uuid")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid job ID")
}

func TestArtifactsFetch_UnknownType(t *testing.T) {
	memoryEnv(t)

	_, _, err := executeCommand(t, "", "artifacts", "fetch", "6f1c2b8e-9f43-4d5c-8a51-7d0c3f2e1a90", "SPREADSHEET")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown artifact type")
}

func TestConfigErrorStopsCommand(t *testing.T) {
	memoryEnv(t)
	t.Setenv("WORKER_COUNT", "0")

	_, _, err := executeCommand(t, "", "token", "--owner", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	memoryEnv(t)
	c, err := config.Load("")
	require.NoError(t, err)
	return c
}

func TestNewApp_PipelineNeedsProvider(t *testing.T) {
	c := testConfig(t)
	log := observability.NewLogger(&strings.Builder{}, "text", "error")

	_, err := newApp(context.Background(), c, log, appOptions{pipeline: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no generation provider")
}

func TestNewApp_PipelineWithOpenRouter(t *testing.T) {
	c := testConfig(t)
	c.ProviderOrder = []string{"openrouter"}
	c.OpenRouterAPIKey = "test-key"
	log := observability.NewLogger(&strings.Builder{}, "text", "error")

	a, err := newApp(context.Background(), c, log, appOptions{pipeline: true})
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.scheduler)
}

func TestNewServer_HealthAndOwnerHeader(t *testing.T) {
	c := testConfig(t)
	log := observability.NewLogger(&strings.Builder{}, "text", "error")
	a, err := newApp(context.Background(), c, log, appOptions{})
	require.NoError(t, err)
	defer a.Close()

	srv, err := newServer(a, 0)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	body := `{"profile":{"name":"Alice","resume_text":"Senior engineer"},"job_description":"` + testDescription + `"}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Owner-ID", "alice")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestWorkerIdentity(t *testing.T) {
	assert.Equal(t, "fixed", workerIdentity("fixed"))

	generated := workerIdentity("")
	assert.NotEmpty(t, generated)
	assert.Contains(t, generated, "-")
}
