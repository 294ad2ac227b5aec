package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"spendwise/internal/log"
)

type ctxKey struct{}

// WithUserID stores the authenticated user id in ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserIDFromContext returns the id set by Middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// UserChecker confirms a token subject still exists.
type UserChecker interface {
	UserExists(ctx context.Context, id string) (bool, error)
}

// Middleware rejects requests without a valid bearer token. When users is
// not nil the token subject must also still exist.
func Middleware(issuer *Issuer, users UserChecker, logger *log.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentAuth)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			tokenStr, found := strings.CutPrefix(h, "Bearer ")
			if !found || strings.TrimSpace(tokenStr) == "" {
				unauthorized(w, "Not authorized, no token")
				return
			}

			userID, err := issuer.Parse(strings.TrimSpace(tokenStr))
			if err != nil {
				logger.DebugContext(r.Context(), "Token rejected", log.FieldError, err)
				unauthorized(w, "Not authorized, token failed")
				return
			}

			if users != nil {
				ok, err := users.UserExists(r.Context(), userID)
				if err != nil {
					logger.ErrorContext(r.Context(), "User lookup failed", log.FieldUserID, userID, log.FieldError, err)
					unauthorized(w, "Not authorized, token failed")
					return
				}
				if !ok {
					unauthorized(w, "User not found")
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "message": msg})
}
