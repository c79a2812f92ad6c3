package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/middleware"
	"github.com/amerfu/llmgate/internal/services/pricing"
	"github.com/amerfu/llmgate/internal/services/providers"
)

type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type ModelList struct {
	Object string      `json:"object"`
	Data   []ModelInfo `json:"data"`
}

// ModelsHandler lists the models the caller can address, derived from the
// price table and filtered by the key's allow-list.
type ModelsHandler struct {
	prices *pricing.Service
	logger *zap.Logger
}

func NewModelsHandler(prices *pricing.Service, logger *zap.Logger) *ModelsHandler {
	return &ModelsHandler{prices: prices, logger: logger}
}

func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	key, ok := middleware.KeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, providers.TypeInternal, "Internal server error")
		return
	}

	prices, err := h.prices.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list model prices", zap.Error(err))
		writeError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to list models")
		return
	}

	data := make([]ModelInfo, 0, len(prices))
	for _, p := range prices {
		if !key.IsModelAllowed(p.ModelName) {
			continue
		}
		data = append(data, ModelInfo{ID: p.ModelName, Object: "model", OwnedBy: p.Provider})
	}

	writeJSON(w, http.StatusOK, ModelList{Object: "list", Data: data})
}
