package db

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// ErrNotFound is returned when a job or artifact does not exist
var ErrNotFound = errors.New("not found")

// ErrLeaseLost is returned when a job is no longer PROCESSING under the caller's lease
var ErrLeaseLost = errors.New("job lease lost")

// ConflictError reports an attempt to write an artifact version out of sequence.
// Next is the version the store expected, when known.
type ConflictError struct {
	JobID   uuid.UUID
	Type    types.ArtifactType
	Version int
	Next    int
	Cause   error
}

func (e *ConflictError) Error() string {
	if e.Next > 0 && e.Version > e.Next {
		return fmt.Sprintf("artifact conflict: job %s %s version %d skips expected version %d", e.JobID, e.Type, e.Version, e.Next)
	}
	return fmt.Sprintf("artifact conflict: job %s %s version %d already exists", e.JobID, e.Type, e.Version)
}

func (e *ConflictError) Unwrap() error {
	return e.Cause
}

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func hasPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
