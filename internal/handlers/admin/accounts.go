package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/services/account"
	"github.com/amerfu/llmgate/internal/services/cache"
	"github.com/amerfu/llmgate/internal/services/providers"
)

type AccountResponse struct {
	UserID             string              `json:"user_id"`
	AccountName        string              `json:"account_name,omitempty"`
	BudgetUSD          float64             `json:"budget_usd"`
	SpentUSD           float64             `json:"spent_usd"`
	RemainingBudgetUSD float64             `json:"remaining_budget_usd"`
	BudgetPeriod       models.BudgetPeriod `json:"budget_period"`
	IsActive           bool                `json:"is_active"`
	IsOverBudget       bool                `json:"is_over_budget"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func newAccountResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		UserID:             a.UserID,
		AccountName:        a.AccountName,
		BudgetUSD:          a.BudgetUSD,
		SpentUSD:           a.SpentUSD,
		RemainingBudgetUSD: a.RemainingBudget(),
		BudgetPeriod:       a.BudgetPeriod,
		IsActive:           a.IsActive,
		IsOverBudget:       a.IsOverBudget(),
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
	}
}

// AccountHandler manages tenant accounts.
type AccountHandler struct {
	baseHandler
	accounts *account.Service
}

func NewAccountHandler(accounts *account.Service, bus *cache.Bus, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		baseHandler: baseHandler{logger: logger, bus: bus},
		accounts:    accounts,
	}
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req account.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "user_id is required")
		return
	}
	if req.BudgetUSD < 0 {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "budget_usd must not be negative")
		return
	}
	if req.BudgetPeriod != "" && !models.ValidBudgetPeriod(req.BudgetPeriod) {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "invalid budget_period")
		return
	}

	created, err := h.accounts.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, account.ErrDuplicateUserID) {
			h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "User ID already exists")
			return
		}
		h.logger.Error("Failed to create account", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to create account")
		return
	}

	h.publish(r, cache.NamespaceAccount, created.UserID)
	h.sendJSON(w, http.StatusOK, newAccountResponse(created))
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	acct, err := h.accounts.GetByUserID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			h.sendError(w, http.StatusNotFound, providers.TypeNotFound, "Account not found")
			return
		}
		h.logger.Error("Failed to get account", zap.String("user_id", userID), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to get account")
		return
	}

	h.sendJSON(w, http.StatusOK, newAccountResponse(acct))
}

func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
	if skip < 0 {
		skip = 0
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 1 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	accounts, err := h.accounts.List(r.Context(), skip, limit)
	if err != nil {
		h.logger.Error("Failed to list accounts", zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to list accounts")
		return
	}

	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, newAccountResponse(a))
	}
	h.sendJSON(w, http.StatusOK, out)
}

func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	var req account.UpdateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "Invalid request body")
		return
	}
	if req.Empty() {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "No fields to update")
		return
	}
	if req.BudgetUSD != nil && *req.BudgetUSD < 0 {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "budget_usd must not be negative")
		return
	}
	if req.BudgetPeriod != nil && !models.ValidBudgetPeriod(*req.BudgetPeriod) {
		h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest, "invalid budget_period")
		return
	}

	updated, err := h.accounts.Update(r.Context(), userID, req)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			h.sendError(w, http.StatusNotFound, providers.TypeNotFound, "Account not found")
			return
		}
		h.logger.Error("Failed to update account", zap.String("user_id", userID), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to update account")
		return
	}

	h.publish(r, cache.NamespaceAccount, userID)
	h.sendJSON(w, http.StatusOK, newAccountResponse(updated))
}
