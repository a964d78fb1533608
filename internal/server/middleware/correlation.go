package middleware

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
	"github.com/jonathan/resume-pipeline/internal/observability"
)

// CorrelationHeader is echoed on every response
const CorrelationHeader = "X-Correlation-ID"

var validCorrelationID = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// Correlation attaches a correlation id to the request context for logging.
// A well-formed X-Correlation-ID or X-Request-ID from the caller is reused.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = r.Header.Get("X-Request-ID")
		}
		if !validCorrelationID.MatchString(id) {
			id = uuid.NewString()
		}

		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(observability.WithCorrelationID(r.Context(), id)))
	})
}
