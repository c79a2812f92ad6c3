package handlers

import (
	"net/http"

	"github.com/amerfu/llmgate/internal/database"
	"github.com/amerfu/llmgate/internal/services/cache"
)

type HealthResponse struct {
	Status   string                   `json:"status"`
	Services map[string]ServiceHealth `json:"services"`
}

type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthHandler answers liveness and readiness probes. Liveness never checks
// dependencies; readiness checks the store and the invalidation bus.
type HealthHandler struct {
	bus *cache.Bus
}

func NewHealthHandler(bus *cache.Bus) *HealthHandler {
	return &HealthHandler{bus: bus}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:   "ready",
		Services: make(map[string]ServiceHealth),
	}

	if database.IsHealthy() {
		response.Services["store"] = ServiceHealth{Status: "healthy"}
	} else {
		response.Services["store"] = ServiceHealth{Status: "unhealthy", Message: "store connection failed"}
		response.Status = "not_ready"
	}

	if err := h.bus.Ping(r.Context()); err != nil {
		response.Services["cache_bus"] = ServiceHealth{Status: "unhealthy", Message: "bus connection failed"}
		response.Status = "not_ready"
	} else {
		response.Services["cache_bus"] = ServiceHealth{Status: "healthy"}
	}

	status := http.StatusOK
	if response.Status != "ready" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}
