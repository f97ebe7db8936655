package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency probed by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler reports process liveness and optional dependency status.
type HealthHandler struct {
	deps map[string]Pinger
}

// NewHealthHandler creates a health handler. Dependencies are reported but never fail
// the check; the BFF can serve without Redis or Postgres.
func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Health responds with {"status":"ok"} and a per-dependency status map.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if len(h.deps) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		checks := make(map[string]string, len(h.deps))
		for name, dep := range h.deps {
			if err := dep.Ping(ctx); err != nil {
				checks[name] = "unavailable"
				continue
			}
			checks[name] = "ok"
		}
		body["dependencies"] = checks
	}
	writeJSON(w, http.StatusOK, body)
}
