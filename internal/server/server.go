package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/observability"
	"github.com/jonathan/resume-pipeline/internal/server/middleware"
	"github.com/jonathan/resume-pipeline/internal/server/ratelimit"
	"github.com/jonathan/resume-pipeline/internal/status"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// Scheduler accepts and cancels jobs
type Scheduler interface {
	Submit(ctx context.Context, ownerID string, payload types.JobPayload, priority int) (*types.Job, error)
	Cancel(ctx context.Context, ownerID string, jobID uuid.UUID) (*types.Job, error)
}

// StatusService answers job and artifact queries
type StatusService interface {
	JobStatus(ctx context.Context, callerID string, jobID uuid.UUID) (*status.View, error)
	FetchArtifact(ctx context.Context, callerID string, jobID uuid.UUID, artifactType types.ArtifactType, version *int) (*types.Artifact, error)
	ListArtifacts(ctx context.Context, callerID string, jobID uuid.UUID) ([]types.ArtifactInfo, error)
}

// Options wires the server's collaborators
type Options struct {
	Port      int
	Scheduler Scheduler
	Status    StatusService
	Metrics   *observability.Metrics
	Limiter   *ratelimit.Limiter
	// Tokens verifies bearer tokens; nil trusts the X-Owner-ID header
	Tokens            middleware.TokenValidator
	Logger            *slog.Logger
	EventPollInterval time.Duration
	// Ready reports dependency health for /health
	Ready func(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	scheduler   Scheduler
	status      StatusService
	metrics     *observability.Metrics
	rateLimiter *ratelimit.Limiter
	logger      *slog.Logger
	pollEvery   time.Duration
	ready       func(ctx context.Context) error
}

// New creates a new server instance
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.EventPollInterval <= 0 {
		opts.EventPollInterval = time.Second
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewLimiter(ratelimit.NewConfig(ratelimit.Settings{Enabled: false}))
	}

	s := &Server{
		scheduler:   opts.Scheduler,
		status:      opts.Status,
		metrics:     opts.Metrics,
		rateLimiter: opts.Limiter,
		logger:      opts.Logger,
		pollEvery:   opts.EventPollInterval,
		ready:       opts.Ready,
	}

	jobsMux := http.NewServeMux()
	jobsMux.HandleFunc("POST /jobs", s.handleSubmit)
	jobsMux.HandleFunc("GET /jobs/{id}", s.handleStatus)
	jobsMux.HandleFunc("GET /jobs/{id}/events", s.handleEvents)
	jobsMux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancel)
	jobsMux.HandleFunc("GET /jobs/{id}/artifacts", s.handleListArtifacts)
	jobsMux.HandleFunc("GET /jobs/{id}/artifacts/{type}", s.handleArtifact)

	authenticated := middleware.OwnerMiddleware(opts.Tokens)(s.withRateLimit(jobsMux))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.Handle("/jobs", authenticated)
	mux.Handle("/jobs/", authenticated)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           middleware.Correlation(s.withLogging(s.withCORS(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second, // event streams clear their own deadline
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := s.httpServer.Shutdown(shutdownCtx)
	s.rateLimiter.Stop()
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, If-None-Match, X-Correlation-ID, X-Owner-ID")
		w.Header().Set("Access-Control-Expose-Headers", "ETag, Location, Retry-After, X-Artifact-Version, X-Artifact-Digest, X-Correlation-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit limits per owner, falling back to the client IP
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientID := s.extractClientID(r)

		allowed, info := s.rateLimiter.Allow(clientID, r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			level = slog.LevelDebug
		}
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "health check failed", "error", err)
			s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

// errorResponse maps err to a status code and writes the error envelope
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := HTTPStatus(err)
	if code == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	s.jsonResponse(w, code, errorBody(err, code))
}

// extractClientID identifies the caller for rate limiting.
// Authenticated requests use the owner id; otherwise the remote IP.
func (s *Server) extractClientID(r *http.Request) string {
	if ownerID, err := middleware.OwnerID(r); err == nil {
		return "owner:" + ownerID
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "rate_limit_exceeded",
		"message":   "Rate limit exceeded. Please try again later.",
		"limit":     info.Limit,
		"remaining": info.Remaining,
	}
	if !info.ResetTime.IsZero() {
		response["reset_at"] = info.ResetTime.Format(time.RFC3339)
	}

	if info.RetryAfter > 0 {
		seconds := int((info.RetryAfter + time.Second - 1) / time.Second)
		response["retry_after"] = seconds
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}

	s.logger.WarnContext(r.Context(), "rate limit exceeded",
		"client", s.extractClientID(r), "path", r.URL.Path, "limit", info.Limit)

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
