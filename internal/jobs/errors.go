// Package jobs schedules resume-generation jobs: submission, leasing, the
// pipeline body each worker runs, retry classification and crash recovery.
package jobs

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrAlreadyTerminal is returned when cancelling a COMPLETED or FAILED job
var ErrAlreadyTerminal = errors.New("job already finished")

// errCancelled aborts a run whose owner asked for cancellation
var errCancelled = errors.New("job cancelled by owner")

// FieldError describes one invalid submission field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports an invalid submission. It is never retried.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "invalid job submission: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// fromValidator converts validator field errors into a ValidationError
func fromValidator(err error) *ValidationError {
	out := &ValidationError{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out.add("request", err.Error())
		return out
	}
	for _, fe := range verrs {
		out.add(fieldName(fe.Namespace()), describeTag(fe))
	}
	return out
}

// fieldName drops the top-level struct name from a validator namespace
func fieldName(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// LeaseExpiredError is returned when a worker no longer holds the lease on the job it is running.
// The job is left for the janitor; the worker must not write a transition.
type LeaseExpiredError struct {
	JobID uuid.UUID
	Cause error
}

func (e *LeaseExpiredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("lease on job %s expired: %v", e.JobID, e.Cause)
	}
	return fmt.Sprintf("lease on job %s expired", e.JobID)
}

func (e *LeaseExpiredError) Unwrap() error {
	return e.Cause
}
