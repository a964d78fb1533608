package types

import (
	"time"

	"github.com/google/uuid"
)

// ArtifactType names the kind of output a pipeline stage produced
type ArtifactType string

// Artifact types
const (
	ArtifactStructuredResume     ArtifactType = "STRUCTURED_RESUME"
	ArtifactTypesetSource        ArtifactType = "TYPESET_SOURCE"
	ArtifactRenderedOutput       ArtifactType = "RENDERED_OUTPUT"
	ArtifactSourceJobDescription ArtifactType = "SOURCE_JOB_DESCRIPTION"
	ArtifactDiagnosticLog        ArtifactType = "DIAGNOSTIC_LOG"
)

// AllArtifactTypes lists every artifact type in display order
var AllArtifactTypes = []ArtifactType{
	ArtifactSourceJobDescription,
	ArtifactStructuredResume,
	ArtifactTypesetSource,
	ArtifactRenderedOutput,
	ArtifactDiagnosticLog,
}

// ParseArtifactType converts a string into a known ArtifactType.
func ParseArtifactType(s string) (ArtifactType, bool) {
	for _, t := range AllArtifactTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// ContentType returns the MIME type used when serving artifacts of this type.
func (t ArtifactType) ContentType() string {
	switch t {
	case ArtifactStructuredResume:
		return "application/json"
	case ArtifactTypesetSource:
		return "application/x-tex"
	case ArtifactRenderedOutput:
		return "application/pdf"
	default:
		return "text/plain; charset=utf-8"
	}
}

// ArtifactInfo is artifact metadata without content
type ArtifactInfo struct {
	ID        uuid.UUID      `json:"id"`
	JobID     uuid.UUID      `json:"job_id"`
	Type      ArtifactType   `json:"type"`
	Version   int            `json:"version"`
	Digest    string         `json:"digest"`
	SizeBytes int64          `json:"size_bytes"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Validated bool           `json:"validated"`
	CreatedAt time.Time      `json:"created_at"`
}

// Artifact is an immutable, versioned output of a job stage
type Artifact struct {
	ArtifactInfo
	Content []byte `json:"-"`
}

// NewArtifact is the input for storing a new artifact version
type NewArtifact struct {
	JobID     uuid.UUID
	Type      ArtifactType
	Content   []byte
	Metadata  map[string]any
	Validated bool
}
