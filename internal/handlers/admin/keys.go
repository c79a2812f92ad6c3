package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/services/account"
	"github.com/amerfu/llmgate/internal/services/cache"
	"github.com/amerfu/llmgate/internal/services/key"
	"github.com/amerfu/llmgate/internal/services/providers"
)

const maxBulkKeys = 100

type KeyResponse struct {
	Key           string    `json:"key"`
	UserID        string    `json:"user_id"`
	KeyName       string    `json:"key_name"`
	IsActive      bool      `json:"is_active"`
	AllowedModels []string  `json:"allowed_models,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newKeyResponse(k *models.Key) KeyResponse {
	return KeyResponse{
		Key:           k.Key,
		UserID:        k.UserID,
		KeyName:       k.KeyName,
		IsActive:      k.IsActive,
		AllowedModels: k.AllowedModels,
		CreatedAt:     k.CreatedAt,
		UpdatedAt:     k.UpdatedAt,
	}
}

// KeyHandler manages bearer keys. Key strings are only ever returned here;
// the data plane never echoes them.
type KeyHandler struct {
	baseHandler
	keys     *key.Service
	accounts *account.Service
}

func NewKeyHandler(keys *key.Service, accounts *account.Service, bus *cache.Bus, logger *zap.Logger) *KeyHandler {
	return &KeyHandler{
		baseHandler: baseHandler{logger: logger, bus: bus},
		keys:        keys,
		accounts:    accounts,
	}
}

func (h *KeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req key.CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "user_id is required")
		return
	}
	if req.KeyName == "" {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "key_name is required")
		return
	}

	if !h.userExists(w, r, req.UserID) {
		return
	}

	created, err := h.keys.Create(r.Context(), req)
	if err != nil {
		h.logger.Error("Failed to create key", zap.String("user_id", req.UserID), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to create key")
		return
	}

	h.publish(r, cache.NamespaceKey, created.Key)
	h.sendJSON(w, http.StatusOK, newKeyResponse(created))
}

func (h *KeyHandler) CreateBulk(w http.ResponseWriter, r *http.Request) {
	var req key.BulkCreateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "user_id is required")
		return
	}
	if req.Count < 1 || req.Count > maxBulkKeys {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "count must be between 1 and 100")
		return
	}

	if !h.userExists(w, r, req.UserID) {
		return
	}

	created, err := h.keys.CreateBulk(r.Context(), req)
	if err != nil {
		h.logger.Error("Failed to create keys in bulk",
			zap.String("user_id", req.UserID),
			zap.Int("created", len(created)),
			zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to create keys")
		return
	}

	out := make([]KeyResponse, 0, len(created))
	for _, k := range created {
		h.publish(r, cache.NamespaceKey, k.Key)
		out = append(out, newKeyResponse(k))
	}
	h.sendJSON(w, http.StatusOK, out)
}

func (h *KeyHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	keys, err := h.keys.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to list keys", zap.String("user_id", userID), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to list keys")
		return
	}

	out := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, newKeyResponse(k))
	}
	h.sendJSON(w, http.StatusOK, out)
}

func (h *KeyHandler) Update(w http.ResponseWriter, r *http.Request) {
	keyValue := chi.URLParam(r, "key")

	var req key.UpdateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "Invalid request body")
		return
	}
	if req.Empty() {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "No fields to update")
		return
	}

	updated, err := h.keys.Update(r.Context(), keyValue, req)
	if err != nil {
		if errors.Is(err, key.ErrKeyNotFound) {
			h.sendError(w, http.StatusNotFound, providers.TypeNotFound, "API key not found")
			return
		}
		h.logger.Error("Failed to update key", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to update key")
		return
	}

	h.publish(r, cache.NamespaceKey, keyValue)
	h.sendJSON(w, http.StatusOK, newKeyResponse(updated))
}

// userExists rejects key mutations aimed at accounts that do not exist, so a
// key can never be created dangling.
func (h *KeyHandler) userExists(w http.ResponseWriter, r *http.Request, userID string) bool {
	if _, err := h.accounts.GetByUserID(r.Context(), userID); err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			h.sendError(w, http.StatusNotFound, providers.TypeNotFound, "User not found")
			return false
		}
		h.logger.Error("Failed to verify account", zap.String("user_id", userID), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to verify account")
		return false
	}
	return true
}
