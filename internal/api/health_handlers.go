package api

import (
	"context"
	"net/http"
	"strings"

	"lenslive/internal/stream"
)

// Pinger reports whether a backing dependency is reachable. The durable
// settings store implements it; the in-memory store has nothing to check and
// is left unwired.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health serves GET /healthz with a component-by-component availability
// report. Disabled components do not degrade the overall status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	checks := h.transport.HealthChecks(r.Context())
	if h.settingsPinger != nil {
		check := stream.HealthStatus{Component: "settings", Status: "ok"}
		if err := h.settingsPinger.Ping(r.Context()); err != nil {
			check.Status = "degraded"
			check.Detail = err.Error()
		}
		checks = append(checks, check)
	}

	status := "ok"
	for _, check := range checks {
		switch strings.ToLower(check.Status) {
		case "ok", "disabled":
			continue
		default:
			status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   status,
		"services": checks,
	})
}
