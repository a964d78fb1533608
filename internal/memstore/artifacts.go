package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// PutArtifact stores content as the next version for (job, type)
func (s *Store) PutArtifact(_ context.Context, in types.NewArtifact) (*types.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[in.JobID]; !ok {
		return nil, fmt.Errorf("job %s: %w", in.JobID, db.ErrNotFound)
	}
	next := 1
	for _, a := range s.artifacts[in.JobID] {
		if a.Type == in.Type && a.Version >= next {
			next = a.Version + 1
		}
	}
	return s.insertLocked(in, next)
}

// PutArtifactVersion stores content at an explicit version. Anything other than
// the next version in sequence yields *db.ConflictError.
func (s *Store) PutArtifactVersion(_ context.Context, in types.NewArtifact, version int) (*types.Artifact, error) {
	if version < 1 {
		return nil, fmt.Errorf("artifact version must be >= 1, got %d", version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[in.JobID]; !ok {
		return nil, fmt.Errorf("job %s: %w", in.JobID, db.ErrNotFound)
	}
	next := 1
	for _, a := range s.artifacts[in.JobID] {
		if a.Type == in.Type && a.Version >= next {
			next = a.Version + 1
		}
	}
	if version != next {
		return nil, &db.ConflictError{JobID: in.JobID, Type: in.Type, Version: version, Next: next}
	}
	return s.insertLocked(in, version)
}

// GetLatestArtifact returns the highest version of a type for a job
func (s *Store) GetLatestArtifact(_ context.Context, jobID uuid.UUID, artifactType types.ArtifactType) (*types.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *types.Artifact
	for i := range s.artifacts[jobID] {
		a := &s.artifacts[jobID][i]
		if a.Type == artifactType && (latest == nil || a.Version > latest.Version) {
			latest = a
		}
	}
	if latest == nil {
		return nil, db.ErrNotFound
	}
	return copyArtifact(latest), nil
}

// GetArtifact returns one exact version
func (s *Store) GetArtifact(_ context.Context, jobID uuid.UUID, artifactType types.ArtifactType, version int) (*types.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.artifacts[jobID] {
		a := &s.artifacts[jobID][i]
		if a.Type == artifactType && a.Version == version {
			return copyArtifact(a), nil
		}
	}
	return nil, db.ErrNotFound
}

// ListArtifacts returns metadata for all artifacts of a job ordered by type and version
func (s *Store) ListArtifacts(_ context.Context, jobID uuid.UUID) ([]types.ArtifactInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]types.ArtifactInfo, 0, len(s.artifacts[jobID]))
	for _, a := range s.artifacts[jobID] {
		info := a.ArtifactInfo
		info.Metadata = copyMetadata(a.Metadata)
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Type != infos[j].Type {
			return infos[i].Type < infos[j].Type
		}
		return infos[i].Version < infos[j].Version
	})
	return infos, nil
}

func (s *Store) insertLocked(in types.NewArtifact, version int) (*types.Artifact, error) {
	content := append([]byte{}, in.Content...)
	metadata, err := cloneMetadata(in.Metadata)
	if err != nil {
		return nil, err
	}
	a := types.Artifact{
		ArtifactInfo: types.ArtifactInfo{
			ID:        uuid.New(),
			JobID:     in.JobID,
			Type:      in.Type,
			Version:   version,
			Digest:    db.Digest(content),
			SizeBytes: int64(len(content)),
			Metadata:  metadata,
			Validated: in.Validated,
			CreatedAt: s.now(),
		},
		Content: content,
	}
	s.artifacts[in.JobID] = append(s.artifacts[in.JobID], a)
	return copyArtifact(&a), nil
}

func copyArtifact(a *types.Artifact) *types.Artifact {
	c := *a
	c.Content = append([]byte{}, a.Content...)
	c.Metadata = copyMetadata(a.Metadata)
	return &c
}

// cloneMetadata round-trips metadata through JSON so stored values have the
// same shapes a database read returns and share nothing with the caller
func cloneMetadata(m map[string]any) (map[string]any, error) {
	out := map[string]any{}
	if len(m) == 0 {
		return out, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact metadata: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact metadata: %w", err)
	}
	return out, nil
}

// copyMetadata deep-copies JSON-shaped metadata
func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyMetadata(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
