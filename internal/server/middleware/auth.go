// Package middleware provides HTTP middleware for caller identity and request correlation.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// ownerIDKey is the context key for storing the caller's owner id.
const ownerIDKey ContextKey = "ownerID"

// ErrNoOwner is returned when a request reached a handler without a caller identity.
var ErrNoOwner = errors.New("owner ID not found in request context")

// OwnerHeader carries the caller identity when no token verifier is configured.
const OwnerHeader = "X-Owner-ID"

// TokenValidator validates bearer tokens and returns the owner id they carry.
type TokenValidator interface {
	ValidateToken(tokenString string) (string, error)
}

// OwnerMiddleware resolves the caller's owner id and adds it to the request context.
// With a validator, a valid bearer token is required. Without one the API runs
// behind a trusted gateway and the X-Owner-ID header is used.
func OwnerMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var ownerID string
			if validator != nil {
				token, ok := bearerToken(r)
				if !ok {
					unauthorized(w)
					return
				}
				id, err := validator.ValidateToken(token)
				if err != nil {
					unauthorized(w)
					return
				}
				ownerID = id
			} else {
				ownerID = strings.TrimSpace(r.Header.Get(OwnerHeader))
			}

			if ownerID == "" {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
		})
	}
}

// bearerToken parses "Authorization: Bearer <token>" with a case-insensitive scheme
func bearerToken(r *http.Request) (string, bool) {
	parts := strings.Fields(r.Header.Get("Authorization"))
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="resume-pipeline"`)
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
}

// WithOwnerID returns a context carrying the owner id.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey, ownerID)
}

// OwnerID extracts the caller's owner id from the request context.
func OwnerID(r *http.Request) (string, error) {
	ownerID, ok := r.Context().Value(ownerIDKey).(string)
	if !ok || ownerID == "" {
		return "", ErrNoOwner
	}
	return ownerID, nil
}
