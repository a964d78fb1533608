// Package server provides the HTTP API for submitting and inspecting resume jobs.
package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/resume-pipeline/internal/jobs"
	"github.com/jonathan/resume-pipeline/internal/server/middleware"
	"github.com/jonathan/resume-pipeline/internal/status"
)

// ErrBadRequest marks malformed requests rejected before reaching the scheduler
var ErrBadRequest = errors.New("bad request")

// ErrorBody is the JSON error envelope
type ErrorBody struct {
	Error  string           `json:"error"`
	Fields []jobs.FieldError `json:"fields,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var verr *jobs.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, middleware.ErrNoOwner):
		return http.StatusUnauthorized
	case errors.Is(err, status.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, status.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, jobs.ErrAlreadyTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// errorBody builds the response body; internal errors are not echoed to callers
func errorBody(err error, code int) ErrorBody {
	if code == http.StatusInternalServerError {
		return ErrorBody{Error: "internal error"}
	}
	body := ErrorBody{Error: err.Error()}
	var verr *jobs.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Fields
	}
	return body
}
