package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/server/middleware"
	"github.com/jonathan/resume-pipeline/internal/status"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// maxSubmitBytes bounds the submission body (profile plus job description)
const maxSubmitBytes = 1 << 20

// keepAliveEvery is how often an idle event stream sends a comment
const keepAliveEvery = 15 * time.Second

// SubmitRequest is the body of POST /jobs
type SubmitRequest struct {
	Profile        types.ProfileSnapshot `json:"profile"`
	JobDescription string                `json:"job_description"`
	Mode           types.GenerationMode  `json:"mode,omitempty"`
	Priority       int                   `json:"priority,omitempty"`
}

// SubmitResponse is returned with 202 Accepted
type SubmitResponse struct {
	JobID     uuid.UUID       `json:"job_id"`
	Status    types.JobStatus `json:"status"`
	StatusURL string          `json:"status_url"`
}

// CancelResponse reports the job state after a cancel request
type CancelResponse struct {
	JobID           uuid.UUID       `json:"job_id"`
	Status          types.JobStatus `json:"status"`
	CancelRequested bool            `json:"cancel_requested"`
}

// ArtifactListResponse is the body of GET /jobs/{id}/artifacts
type ArtifactListResponse struct {
	JobID     uuid.UUID            `json:"job_id"`
	Artifacts []types.ArtifactInfo `json:"artifacts"`
}

// handleSubmit enqueues a generation job
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	var req SubmitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSubmitBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.jsonResponse(w, http.StatusRequestEntityTooLarge, ErrorBody{Error: "request body too large"})
			return
		}
		s.errorResponse(w, r, fmt.Errorf("%w: invalid request body: %v", ErrBadRequest, err))
		return
	}
	if dec.More() {
		s.errorResponse(w, r, fmt.Errorf("%w: trailing data after request body", ErrBadRequest))
		return
	}

	job, err := s.scheduler.Submit(r.Context(), ownerID, types.JobPayload{
		Profile:        req.Profile,
		JobDescription: req.JobDescription,
		Mode:           req.Mode,
	}, req.Priority)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	location := "/jobs/" + job.ID.String()
	w.Header().Set("Location", location)
	s.jsonResponse(w, http.StatusAccepted, SubmitResponse{
		JobID:     job.ID,
		Status:    job.Status,
		StatusURL: location,
	})
}

// pathJobID parses {id}; malformed ids are reported as not found
func pathJobID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("job %q: %w", r.PathValue("id"), status.ErrNotFound)
	}
	return id, nil
}

// handleStatus returns the caller's view of a job
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	jobID, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	view, err := s.status.JobStatus(r.Context(), ownerID, jobID)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	s.jsonResponse(w, http.StatusOK, view)
}

// handleCancel cancels a queued job or flags a running one
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	jobID, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	job, err := s.scheduler.Cancel(r.Context(), ownerID, jobID)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusAccepted, CancelResponse{
		JobID:           job.ID,
		Status:          job.Status,
		CancelRequested: job.CancelRequested,
	})
}

// handleListArtifacts lists artifact metadata for a job
func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	jobID, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	infos, err := s.status.ListArtifacts(r.Context(), ownerID, jobID)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, ArtifactListResponse{JobID: jobID, Artifacts: infos})
}

// handleArtifact serves artifact content; ?version=N selects a version, default latest
func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	jobID, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	artifactType, ok := types.ParseArtifactType(strings.ToUpper(r.PathValue("type")))
	if !ok {
		s.errorResponse(w, r, fmt.Errorf("artifact type %q: %w", r.PathValue("type"), status.ErrNotFound))
		return
	}

	var version *int
	if raw := r.URL.Query().Get("version"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			s.errorResponse(w, r, fmt.Errorf("%w: version must be a positive integer", ErrBadRequest))
			return
		}
		version = &v
	}

	artifact, err := s.status.FetchArtifact(r.Context(), ownerID, jobID, artifactType, version)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	etag := `"` + artifact.Digest + `"`
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("X-Artifact-Version", strconv.Itoa(artifact.Version))
	h.Set("X-Artifact-Digest", artifact.Digest)
	h.Set("X-Artifact-Validated", strconv.FormatBool(artifact.Validated))
	h.Set("X-Artifact-Created-At", artifact.CreatedAt.UTC().Format(time.RFC3339))
	if version != nil {
		// a pinned version never changes
		h.Set("Cache-Control", "private, max-age=31536000, immutable")
	} else {
		h.Set("Cache-Control", "private, no-cache")
	}

	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.Set("Content-Type", artifactType.ContentType())
	h.Set("Content-Length", strconv.Itoa(len(artifact.Content)))
	if artifactType == types.ArtifactRenderedOutput {
		h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="resume-%s-v%d.pdf"`, jobID, artifact.Version))
	}
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		if _, err := w.Write(artifact.Content); err != nil {
			s.logger.WarnContext(r.Context(), "failed to write artifact", "job_id", jobID, "error", err)
		}
	}
}

// handleEvents streams status changes as server-sent events until the job is terminal
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ownerID, err := middleware.OwnerID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	jobID, err := pathJobID(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	ctx := r.Context()
	view, err := s.status.JobStatus(ctx, ownerID, jobID)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	// streams outlive the server's write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	var last *status.View
	lastWrite := time.Now()
	for {
		if last == nil || changed(last, view) {
			event := "status"
			if view.Status.IsTerminal() {
				event = "complete"
			}
			if err := sse.WriteEvent(event, view); err != nil {
				return
			}
			last, lastWrite = view, time.Now()
		} else if time.Since(lastWrite) >= keepAliveEvery {
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
			lastWrite = time.Now()
		}
		if view.Status.IsTerminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := s.status.JobStatus(ctx, ownerID, jobID)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.WarnContext(ctx, "event stream status failed", "job_id", jobID, "error", err)
				sse.WriteError("status unavailable")
			}
			return
		}
		view = next
	}
}

func changed(a, b *status.View) bool {
	return a.Status != b.Status ||
		a.Stage != b.Stage ||
		a.Progress != b.Progress ||
		a.Attempts != b.Attempts ||
		a.CancelRequested != b.CancelRequested
}
