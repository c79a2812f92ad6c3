package admin

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/services/cache"
)

// HealthHandler reports gateway internals the public probes do not expose.
type HealthHandler struct {
	baseHandler
	cache *cache.Cache
}

func NewHealthHandler(c *cache.Cache, bus *cache.Bus, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		baseHandler: baseHandler{logger: logger, bus: bus},
		cache:       c,
	}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	busStatus := "healthy"
	if err := h.bus.Ping(r.Context()); err != nil {
		busStatus = "unhealthy"
	}

	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"cache_stats": h.cache.Stats(),
		"cache_bus":   busStatus,
	})
}
