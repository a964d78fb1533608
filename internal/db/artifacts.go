package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/resume-pipeline/internal/types"
)

const artifactInfoColumns = `id, job_id, type, version, digest, size_bytes, metadata, validated, created_at`

// PutArtifact stores content as the next version for (job, type).
// Versions are assigned under a transaction-scoped advisory lock so concurrent writers never collide.
func (db *DB) PutArtifact(ctx context.Context, in types.NewArtifact) (*types.Artifact, error) {
	return db.putArtifact(ctx, in, 0)
}

// PutArtifactVersion stores content at an explicit version. Anything other than
// the next version in sequence yields *ConflictError.
func (db *DB) PutArtifactVersion(ctx context.Context, in types.NewArtifact, version int) (*types.Artifact, error) {
	if version < 1 {
		return nil, fmt.Errorf("artifact version must be >= 1, got %d", version)
	}
	return db.putArtifact(ctx, in, version)
}

// putArtifact writes version, or the next version when version is 0
func (db *DB) putArtifact(ctx context.Context, in types.NewArtifact, version int) (*types.Artifact, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockKey := in.JobID.String() + ":" + string(in.Type)
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		return nil, fmt.Errorf("failed to lock artifact sequence: %w", err)
	}

	var next int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM job_artifacts WHERE job_id = $1 AND type = $2`,
		in.JobID, string(in.Type),
	).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to compute next artifact version: %w", err)
	}
	if version == 0 {
		version = next
	}
	if version != next {
		return nil, &ConflictError{JobID: in.JobID, Type: in.Type, Version: version, Next: next}
	}

	artifact, err := insertArtifact(ctx, tx, in, version)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit artifact: %w", err)
	}
	return artifact, nil
}

// GetLatestArtifact returns the highest version of an artifact type for a job
func (db *DB) GetLatestArtifact(ctx context.Context, jobID uuid.UUID, artifactType types.ArtifactType) (*types.Artifact, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+artifactInfoColumns+`, content FROM job_artifacts
		 WHERE job_id = $1 AND type = $2
		 ORDER BY version DESC LIMIT 1`,
		jobID, string(artifactType),
	)
	return scanArtifactRow(row)
}

// GetArtifact returns one exact artifact version
func (db *DB) GetArtifact(ctx context.Context, jobID uuid.UUID, artifactType types.ArtifactType, version int) (*types.Artifact, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+artifactInfoColumns+`, content FROM job_artifacts
		 WHERE job_id = $1 AND type = $2 AND version = $3`,
		jobID, string(artifactType), version,
	)
	return scanArtifactRow(row)
}

// ListArtifacts returns metadata for every artifact of a job ordered by type and version
func (db *DB) ListArtifacts(ctx context.Context, jobID uuid.UUID) ([]types.ArtifactInfo, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+artifactInfoColumns+` FROM job_artifacts
		 WHERE job_id = $1
		 ORDER BY type, version`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.ArtifactInfo, error) {
		var info types.ArtifactInfo
		err := scanArtifactInfo(row, &info)
		return info, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read artifacts: %w", err)
	}
	return infos, nil
}

func insertArtifact(ctx context.Context, q querier, in types.NewArtifact, version int) (*types.Artifact, error) {
	metadata := in.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal artifact metadata: %w", err)
	}
	content := in.Content
	if content == nil {
		content = []byte{}
	}

	artifact := &types.Artifact{
		ArtifactInfo: types.ArtifactInfo{
			JobID:     in.JobID,
			Type:      in.Type,
			Version:   version,
			Digest:    Digest(content),
			SizeBytes: int64(len(content)),
			Metadata:  metadata,
			Validated: in.Validated,
		},
		Content: content,
	}

	err = q.QueryRow(ctx,
		`INSERT INTO job_artifacts (job_id, type, version, content, digest, size_bytes, metadata, validated)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, created_at`,
		in.JobID, string(in.Type), version, content, artifact.Digest, artifact.SizeBytes, metaJSON, in.Validated,
	).Scan(&artifact.ID, &artifact.CreatedAt)
	switch {
	case err == nil:
		return artifact, nil
	case hasPgCode(err, pgUniqueViolation):
		return nil, &ConflictError{JobID: in.JobID, Type: in.Type, Version: version, Cause: err}
	case hasPgCode(err, pgForeignKeyViolation):
		return nil, fmt.Errorf("job %s: %w", in.JobID, ErrNotFound)
	default:
		return nil, fmt.Errorf("failed to insert artifact %s: %w", in.Type, err)
	}
}

func scanArtifactRow(row pgx.Row) (*types.Artifact, error) {
	var artifact types.Artifact
	var artifactType string
	var metaJSON []byte
	err := row.Scan(
		&artifact.ID, &artifact.JobID, &artifactType, &artifact.Version, &artifact.Digest,
		&artifact.SizeBytes, &metaJSON, &artifact.Validated, &artifact.CreatedAt, &artifact.Content,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	artifact.Type = types.ArtifactType(artifactType)
	if err := json.Unmarshal(metaJSON, &artifact.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact metadata: %w", err)
	}
	return &artifact, nil
}

func scanArtifactInfo(row pgx.Row, info *types.ArtifactInfo) error {
	var artifactType string
	var metaJSON []byte
	err := row.Scan(
		&info.ID, &info.JobID, &artifactType, &info.Version, &info.Digest,
		&info.SizeBytes, &metaJSON, &info.Validated, &info.CreatedAt,
	)
	if err != nil {
		return err
	}
	info.Type = types.ArtifactType(artifactType)
	return json.Unmarshal(metaJSON, &info.Metadata)
}

// Digest returns the hex-encoded SHA-256 of content
func Digest(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
