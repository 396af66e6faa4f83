package handlers

import (
	"net/http"
	"time"

	"github.com/wonny/flof/backend/internal/contracts"
)

// HealthReporter reports feed and broker health
type HealthReporter interface {
	Report(now time.Time) contracts.HealthReport
}

// HealthHandler serves liveness and infrastructure health
type HealthHandler struct {
	monitor HealthReporter
	service string
}

// NewHealthHandler creates a new health handler. monitor may be nil (API-only process).
func NewHealthHandler(monitor HealthReporter, service string) *HealthHandler {
	return &HealthHandler{monitor: monitor, service: service}
}

// GetHealth returns server health status. Unhealthy infrastructure answers 503.
// GET /health
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if h.monitor == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": h.service,
		})
		return
	}

	report := h.monitor.Report(time.Now())
	status := http.StatusOK
	label := "ok"
	if !report.Healthy {
		status = http.StatusServiceUnavailable
		label = "degraded"
	}
	respondJSON(w, status, map[string]interface{}{
		"status":  label,
		"service": h.service,
		"report":  report,
	})
}
