package admin

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/services/cache"
)

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type baseHandler struct {
	logger *zap.Logger
	bus    *cache.Bus
}

func (h *baseHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *baseHandler) sendError(w http.ResponseWriter, status int, errType, message string) {
	h.sendJSON(w, status, errorEnvelope{Error: errorBody{Message: message, Type: errType}})
}

// publish announces a mutation on the invalidation bus. Best effort: the
// entry's TTL bounds staleness when the bus is down.
func (h *baseHandler) publish(r *http.Request, namespace, id string) {
	if err := h.bus.Publish(r.Context(), namespace, id); err != nil {
		h.logger.Warn("Failed to publish invalidation",
			zap.String("namespace", namespace),
			zap.String("id", id),
			zap.Error(err))
	}
}
