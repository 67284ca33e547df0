package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler reports process liveness and basic uptime information.
type HealthHandler struct {
	logger  *slog.Logger
	started time.Time
}

func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	return &HealthHandler{logger: logger, started: time.Now().UTC()}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(h.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
