package http

import (
	"context"
	"net/http"
	"time"

	"spendwise/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	OK(map[string]any{
		"status":    "ok",
		"timestamp": now.UTC().Format(time.RFC3339),
		"uptime":    now.Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports whether the store answers within a short timeout.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "Service not ready").Write(w)
			return
		}
	}
	OK(map[string]any{"status": "ready", "checks": map[string]string{"store": "ok"}}).Write(w)
}
