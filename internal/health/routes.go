package health

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HealthHandler provides health check endpoints
type HealthHandler struct {
	checker *HealthChecker
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker *HealthChecker) *HealthHandler {
	return &HealthHandler{
		checker: checker,
	}
}

// RegisterRoutes registers health check endpoints on the admin router
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.handleHealthStatus)
		r.Get("/live", h.handleLiveness)
		r.Get("/ready", h.handleReadiness)
	})
}

// handleHealthStatus returns complete health status
func (h *HealthHandler) handleHealthStatus(w http.ResponseWriter, r *http.Request) {
	status := h.checker.Check(r.Context())

	httpStatus := http.StatusOK
	if status.Status != "healthy" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, status)
}

// handleLiveness checks if the service is running
func (h *HealthHandler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "alive",
		"message": "Service is running",
	})
}

// handleReadiness checks if the service is ready to serve requests
func (h *HealthHandler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := h.checker.Check(r.Context())

	if status.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ready",
			"message": "Service is ready to serve requests",
		})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":  "not_ready",
		"message": "Service is not ready: " + status.Message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
