package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/services/cache"
	"github.com/amerfu/llmgate/internal/services/pricing"
	"github.com/amerfu/llmgate/internal/services/providers"
)

type CostResponse struct {
	ModelName      string    `json:"model_name"`
	Provider       string    `json:"provider"`
	InputRate      float64   `json:"input_rate"`
	OutputRate     float64   `json:"output_rate"`
	CacheReadRate  float64   `json:"cache_read_rate"`
	CacheWriteRate float64   `json:"cache_write_rate"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func newCostResponse(p *models.ModelPrice) CostResponse {
	return CostResponse{
		ModelName:      p.ModelName,
		Provider:       p.Provider,
		InputRate:      p.InputRate,
		OutputRate:     p.OutputRate,
		CacheReadRate:  p.CacheReadRate,
		CacheWriteRate: p.CacheWriteRate,
		UpdatedAt:      p.UpdatedAt,
	}
}

// CostHandler manages the model price table. Rates are USD per million
// tokens.
type CostHandler struct {
	baseHandler
	prices *pricing.Service
}

func NewCostHandler(prices *pricing.Service, bus *cache.Bus, logger *zap.Logger) *CostHandler {
	return &CostHandler{
		baseHandler: baseHandler{logger: logger, bus: bus},
		prices:      prices,
	}
}

// Upsert creates or fully replaces one model's rate card.
func (h *CostHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req pricing.UpsertPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "Invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, err.Error())
		return
	}

	price, _, err := h.prices.Upsert(r.Context(), &req)
	if err != nil {
		h.logger.Error("Failed to upsert price", zap.String("model", req.ModelName), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to upsert model cost")
		return
	}

	h.publish(r, cache.NamespacePrice, price.ModelName)
	h.sendJSON(w, http.StatusOK, newCostResponse(price))
}

func (h *CostHandler) List(w http.ResponseWriter, r *http.Request) {
	prices, err := h.prices.List(r.Context())
	if err != nil {
		h.logger.Error("Failed to list prices", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to list model costs")
		return
	}

	out := make([]CostResponse, 0, len(prices))
	for i := range prices {
		out = append(out, newCostResponse(&prices[i]))
	}
	h.sendJSON(w, http.StatusOK, out)
}

func (h *CostHandler) Get(w http.ResponseWriter, r *http.Request) {
	modelName := chi.URLParam(r, "model_name")

	price, err := h.prices.GetByModel(r.Context(), modelName)
	if err != nil {
		if errors.Is(err, pricing.ErrPriceNotFound) {
			h.sendError(w, http.StatusNotFound, providers.TypeNotFound, "Model cost not found")
			return
		}
		h.logger.Error("Failed to get price", zap.String("model", modelName), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to get model cost")
		return
	}

	h.sendJSON(w, http.StatusOK, newCostResponse(price))
}

func (h *CostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	modelName := chi.URLParam(r, "model_name")

	if err := h.prices.Delete(r.Context(), modelName); err != nil {
		if errors.Is(err, pricing.ErrPriceNotFound) {
			h.sendError(w, http.StatusNotFound, providers.TypeNotFound, "Model cost not found")
			return
		}
		h.logger.Error("Failed to delete price", zap.String("model", modelName), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to delete model cost")
		return
	}

	h.publish(r, cache.NamespacePrice, modelName)
	h.sendJSON(w, http.StatusOK, map[string]string{"message": "Model cost deleted successfully"})
}
