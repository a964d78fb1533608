package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonathan/resume-pipeline/internal/compile"
	"github.com/jonathan/resume-pipeline/internal/db"
	"github.com/jonathan/resume-pipeline/internal/generation"
	"github.com/jonathan/resume-pipeline/internal/llm"
	"github.com/jonathan/resume-pipeline/internal/types"
	"github.com/stretchr/testify/assert"
)

func providersFailed(kinds ...llm.ErrorKind) error {
	failed := &generation.FailedError{}
	for i, k := range kinds {
		failed.Failures = append(failed.Failures, generation.ProviderFailure{
			Provider: fmt.Sprintf("p%d", i),
			Kind:     k,
			Message:  string(k),
		})
	}
	return fmt.Errorf("generation: %w", failed)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		class  Class
		kind   types.ErrorKind
		defect bool
	}{
		{"provider timeouts", providersFailed(llm.KindTimeout, llm.KindRateLimit), ClassTransient, types.ErrorKindProvider, false},
		{"one server error among defects", providersFailed(llm.KindInvalidOutput, llm.KindServer), ClassTransient, types.ErrorKindProvider, false},
		{"invalid output everywhere", providersFailed(llm.KindInvalidOutput, llm.KindInvalidOutput), ClassDefect, types.ErrorKindDefect, true},
		{"auth everywhere", providersFailed(llm.KindAuth, llm.KindAuth), ClassFatal, types.ErrorKindConfig, false},
		{"auth and bad request", providersFailed(llm.KindAuth, llm.KindBadRequest), ClassFatal, types.ErrorKindConfig, false},
		{"auth and invalid output", providersFailed(llm.KindAuth, llm.KindInvalidOutput), ClassDefect, types.ErrorKindDefect, true},
		{"no providers", generation.ErrNoProviders, ClassFatal, types.ErrorKindConfig, false},
		{"compile timeout", &compile.CompilationError{Kind: compile.KindTimeout}, ClassTransient, types.ErrorKindCompilation, false},
		{"compile workspace", &compile.CompilationError{Kind: compile.KindWorkspace}, ClassTransient, types.ErrorKindCompilation, false},
		{"compile syntax", &compile.CompilationError{Kind: compile.KindSyntax}, ClassDefect, types.ErrorKindCompilation, true},
		{"unsafe source", &compile.CompilationError{Kind: compile.KindUnsafeSource}, ClassDefect, types.ErrorKindCompilation, true},
		{"missing compiler", &compile.CompilationError{Kind: compile.KindMissingCompiler}, ClassFatal, types.ErrorKindConfig, false},
		{"conflict", fmt.Errorf("store: %w", &db.ConflictError{Type: types.ArtifactTypesetSource, Version: 2}), ClassConflict, types.ErrorKindConflict, false},
		{"cancelled", errCancelled, ClassFatal, types.ErrorKindCancelled, false},
		{"validation", &ValidationError{Fields: []FieldError{{Field: "priority", Message: "must be at most 100"}}}, ClassFatal, types.ErrorKindValidation, false},
		{"deadline", context.DeadlineExceeded, ClassTransient, types.ErrorKindInternal, false},
		{"unknown", errors.New("connection reset by peer"), ClassTransient, types.ErrorKindInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class, jobErr := Classify(tt.err)
			assert.Equal(t, tt.class, class)
			assert.Equal(t, tt.kind, jobErr.Kind)
			assert.Equal(t, tt.defect, jobErr.Defect)
			assert.NotEmpty(t, jobErr.Message)
		})
	}
}

func TestBackoff(t *testing.T) {
	base, max := 5*time.Second, 5*time.Minute

	assert.Equal(t, 5*time.Second, Backoff(0, base, max))
	assert.Equal(t, 5*time.Second, Backoff(1, base, max))
	assert.Equal(t, 10*time.Second, Backoff(2, base, max))
	assert.Equal(t, 20*time.Second, Backoff(3, base, max))
	assert.Equal(t, 160*time.Second, Backoff(6, base, max))
	assert.Equal(t, max, Backoff(7, base, max))
	assert.Equal(t, max, Backoff(60, base, max))
}

func TestNextStatus(t *testing.T) {
	defect := &types.JobError{Kind: types.ErrorKindDefect, Defect: true}
	transient := &types.JobError{Kind: types.ErrorKindProvider}

	assert.Equal(t, types.JobStatusRetrying, nextStatus(ClassTransient, 1, 3, nil))
	assert.Equal(t, types.JobStatusRetrying, nextStatus(ClassTransient, 2, 3, transient))
	assert.Equal(t, types.JobStatusFailed, nextStatus(ClassTransient, 3, 3, transient))
	assert.Equal(t, types.JobStatusRetrying, nextStatus(ClassDefect, 1, 3, nil))
	assert.Equal(t, types.JobStatusRetrying, nextStatus(ClassDefect, 2, 3, transient))
	assert.Equal(t, types.JobStatusFailed, nextStatus(ClassDefect, 2, 3, defect))
	assert.Equal(t, types.JobStatusFailed, nextStatus(ClassFatal, 1, 3, nil))
	assert.Equal(t, types.JobStatusFailed, nextStatus(ClassConflict, 1, 3, nil))
	assert.Equal(t, types.JobStatusFailed, nextStatus(ClassDefect, 1, 1, nil))
}
