package generation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/resume-pipeline/internal/llm"
)

// ErrNoProviders is returned when an orchestrator is built without providers
var ErrNoProviders = errors.New("no generation providers configured")

// ProviderFailure records why one provider did not produce a usable document
type ProviderFailure struct {
	Provider   string        `json:"provider"`
	Kind       llm.ErrorKind `json:"kind"`
	StatusCode int           `json:"status_code,omitempty"`
	Message    string        `json:"message"`
	Detail     string        `json:"detail,omitempty"`
}

// Retryable reports whether this provider may succeed on a later attempt
func (f ProviderFailure) Retryable() bool {
	return (&llm.ProviderError{Kind: f.Kind}).Retryable()
}

// InvalidOutputError is returned when a provider's response is unusable
type InvalidOutputError struct {
	Message string
	Cause   error
}

func (e *InvalidOutputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid provider output: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid provider output: %s", e.Message)
}

func (e *InvalidOutputError) Unwrap() error {
	return e.Cause
}

// FailedError is returned when every provider failed
type FailedError struct {
	Failures []ProviderFailure
	Attempts []AttemptRecord
}

func (e *FailedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s: %s", f.Provider, f.Kind, f.Message))
	}
	return fmt.Sprintf("all %d providers failed (%s)", len(e.Failures), strings.Join(parts, "; "))
}

// AnyRetryable reports whether at least one provider failed transiently
func (e *FailedError) AnyRetryable() bool {
	for _, f := range e.Failures {
		if f.Retryable() {
			return true
		}
	}
	return false
}

// AllKinds reports whether every failure has one of the given kinds
func (e *FailedError) AllKinds(kinds ...llm.ErrorKind) bool {
	if len(e.Failures) == 0 {
		return false
	}
	for _, f := range e.Failures {
		match := false
		for _, k := range kinds {
			if f.Kind == k {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}
