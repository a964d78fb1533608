package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/resume-pipeline/internal/compile"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/generation"
	"github.com/jonathan/resume-pipeline/internal/llm"
	"github.com/jonathan/resume-pipeline/internal/types"
)

// Class is the retry policy bucket for a run failure
type Class int

const (
	// ClassTransient failures retry with backoff until the attempt budget is spent
	ClassTransient Class = iota
	// ClassDefect failures come from unusable generated content and retry once
	ClassDefect
	// ClassFatal failures never retry
	ClassFatal
	// ClassConflict means two writers raced on one artifact version
	ClassConflict
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassDefect:
		return "defect"
	case ClassFatal:
		return "fatal"
	case ClassConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Classify maps a run error to its retry class and the summary recorded on the job.
// The summary is meant for users; raw provider bodies and compiler logs are not included.
func Classify(err error) (Class, *types.JobError) {
	var (
		conflict *db.ConflictError
		invalid  *ValidationError
		failed   *generation.FailedError
		compErr  *compile.CompilationError
	)

	switch {
	case errors.As(err, &conflict):
		return ClassConflict, &types.JobError{
			Kind:    types.ErrorKindConflict,
			Message: fmt.Sprintf("%s version %d was written twice", conflict.Type, conflict.Version),
		}

	case errors.Is(err, errCancelled):
		return ClassFatal, &types.JobError{Kind: types.ErrorKindCancelled, Message: "cancelled"}

	case errors.As(err, &invalid):
		return ClassFatal, &types.JobError{Kind: types.ErrorKindValidation, Message: invalid.Error()}

	case errors.Is(err, generation.ErrNoProviders):
		return ClassFatal, &types.JobError{Kind: types.ErrorKindConfig, Message: "no generation providers are configured", Stage: types.StageDrafting}

	case errors.As(err, &failed):
		msg := "all providers failed: " + failureSummary(failed)
		switch {
		case failed.AllKinds(llm.KindAuth, llm.KindBadRequest):
			return ClassFatal, &types.JobError{Kind: types.ErrorKindConfig, Message: msg, Stage: types.StageDrafting}
		case failed.AnyRetryable():
			return ClassTransient, &types.JobError{Kind: types.ErrorKindProvider, Message: msg, Stage: types.StageDrafting}
		default:
			return ClassDefect, &types.JobError{Kind: types.ErrorKindDefect, Message: msg, Stage: types.StageDrafting, Defect: true}
		}

	case errors.As(err, &compErr):
		jobErr := &types.JobError{
			Kind:    types.ErrorKindCompilation,
			Message: fmt.Sprintf("compilation failed (%s): %s", compErr.Kind, compErr.Message),
			Stage:   types.StageCompiling,
		}
		switch {
		case compErr.Kind == compile.KindMissingCompiler:
			jobErr.Kind = types.ErrorKindConfig
			return ClassFatal, jobErr
		case compErr.Transient():
			return ClassTransient, jobErr
		default:
			jobErr.Defect = true
			return ClassDefect, jobErr
		}

	case errors.Is(err, context.DeadlineExceeded):
		return ClassTransient, &types.JobError{Kind: types.ErrorKindInternal, Message: "operation timed out"}

	default:
		return ClassTransient, &types.JobError{Kind: types.ErrorKindInternal, Message: "internal error: " + err.Error()}
	}
}

func failureSummary(e *generation.FailedError) string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Provider, f.Kind))
	}
	return strings.Join(parts, ", ")
}

// Backoff returns the delay before retry number attempts: base * 2^(attempts-1), capped at max.
func Backoff(attempts int, base, max time.Duration) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// nextStatus decides where a failed run goes given the class and the attempt count after charging it
func nextStatus(class Class, attempts, maxAttempts int, previous *types.JobError) types.JobStatus {
	if attempts >= maxAttempts {
		return types.JobStatusFailed
	}
	switch class {
	case ClassTransient:
		return types.JobStatusRetrying
	case ClassDefect:
		if previous != nil && previous.Defect {
			return types.JobStatusFailed
		}
		return types.JobStatusRetrying
	default:
		return types.JobStatusFailed
	}
}
