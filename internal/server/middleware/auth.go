// Package middleware provides HTTP middleware for run authentication.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

// runIDKey is the context key for storing the authenticated run ID.
const runIDKey ContextKey = "runID"

// TokenValidator is an interface for validating run tokens. It allows the
// middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (RunIDGetter, error)
}

// RunIDGetter is an interface for extracting the run ID from token claims.
type RunIDGetter interface {
	GetRunID() uuid.UUID
}

// AuthMiddleware creates middleware that validates run tokens and adds the
// run ID to the request context. Tokens are scoped to a single run; the
// handler still has to check the path run ID against the token's.
func AuthMiddleware(jwtService TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := jwtService.ValidateToken(tokenString)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), runIDKey, claims.GetRunID())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRunID extracts the authenticated run ID from the request context.
func GetRunID(r *http.Request) (uuid.UUID, error) {
	runID, ok := r.Context().Value(runIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("run ID not found in request context")
	}
	return runID, nil
}
