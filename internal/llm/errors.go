package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
)

// ErrorKind classifies a provider failure
type ErrorKind string

// Provider failure kinds
const (
	KindTimeout       ErrorKind = "timeout"
	KindRateLimit     ErrorKind = "rate_limit"
	KindServer        ErrorKind = "server"
	KindAuth          ErrorKind = "auth"
	KindBadRequest    ErrorKind = "bad_request"
	KindInvalidOutput ErrorKind = "invalid_output"
	KindUnknown       ErrorKind = "unknown"
)

// ProviderError is a classified failure from an LLM provider
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Body       string // raw response body, kept for diagnostics only
	Cause      error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("provider %s %s error: %s", e.Provider, e.Kind, e.Message)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the same request may succeed later
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindRateLimit, KindServer, KindUnknown:
		return true
	default:
		return false
	}
}

// Classify converts an arbitrary client error into a *ProviderError
func Classify(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider == "" {
			pe.Provider = provider
		}
		return pe
	}

	out := &ProviderError{Provider: provider, Kind: KindUnknown, Message: "request failed", Cause: err}

	var apiErr *googleapi.Error
	var blocked *genai.BlockedError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind, out.Message = KindTimeout, "request timed out"
	case errors.As(err, &blocked):
		out.Kind, out.Message = KindInvalidOutput, "response blocked by safety filters"
	case errors.As(err, &apiErr):
		out.Kind = KindForStatus(apiErr.Code)
		out.StatusCode = apiErr.Code
		out.Message = apiErr.Message
		out.Body = apiErr.Body
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Kind, out.Message = KindTimeout, "network timeout"
	}
	return out
}

// KindForStatus maps an HTTP status code to a failure kind
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusPaymentRequired:
		return KindAuth
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindBadRequest
	default:
		return KindUnknown
	}
}
