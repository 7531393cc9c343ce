package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"simple-bot/internal/models"

	"go.uber.org/zap"
)

// HealthCheck reports whether one backing dependency is reachable
type HealthCheck func(ctx context.Context) error

// HealthHandler answers /health by pinging the configured dependencies
type HealthHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewHealthHandler creates a health handler; checks may be empty
func NewHealthHandler(checks map[string]HealthCheck, logger *zap.SugaredLogger) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 3 * time.Second, logger: logger}
}

// HealthResponse lists the state of every dependency
type HealthResponse struct {
	models.BasicResponse
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthCheckHandler reports service health
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	response := HealthResponse{
		BasicResponse: models.BasicResponse{Message: "Server is healthy", Status: "success"},
		Dependencies:  make(map[string]string, len(names)),
	}
	status := http.StatusOK

	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warnf("Health check %s failed: %v", name, err)
			response.Dependencies[name] = "unavailable"
			response.Message = "One or more dependencies are unavailable"
			response.Status = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Dependencies[name] = "ok"
	}

	writeJSON(w, status, response, h.logger)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, logger *zap.SugaredLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("Failed to encode JSON: %v", err)
	}
}
