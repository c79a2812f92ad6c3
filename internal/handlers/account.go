package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/middleware"
	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/services/account"
	"github.com/amerfu/llmgate/internal/services/providers"
)

type AccountSnapshot struct {
	UserID             string              `json:"user_id"`
	AccountName        string              `json:"account_name,omitempty"`
	BudgetUSD          float64             `json:"budget_usd"`
	SpentUSD           float64             `json:"spent_usd"`
	RemainingBudgetUSD float64             `json:"remaining_budget_usd"`
	BudgetPeriod       models.BudgetPeriod `json:"budget_period"`
	IsActive           bool                `json:"is_active"`
	IsOverBudget       bool                `json:"is_over_budget"`
	KeyName            string              `json:"key_name"`
	AllowedModels      []string            `json:"allowed_models,omitempty"`
}

// AccountHandler reports the caller's own account. It reads the store
// directly rather than the admission cache so a completion settled a moment
// ago is already reflected in spent_usd.
type AccountHandler struct {
	accounts *account.Service
	logger   *zap.Logger
}

func NewAccountHandler(accounts *account.Service, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger}
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, ok := middleware.KeyFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusInternalServerError, providers.TypeInternal, "Internal server error")
		return
	}

	acct, err := h.accounts.GetByUserID(r.Context(), key.UserID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			h.logger.Error("Key references a missing account",
				zap.String("user_id", key.UserID))
			writeError(w, http.StatusInternalServerError, providers.TypeInternal, "Account record is missing")
			return
		}
		h.logger.Error("Failed to load account", zap.String("user_id", key.UserID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, AccountSnapshot{
		UserID:             acct.UserID,
		AccountName:        acct.AccountName,
		BudgetUSD:          acct.BudgetUSD,
		SpentUSD:           acct.SpentUSD,
		RemainingBudgetUSD: acct.RemainingBudget(),
		BudgetPeriod:       acct.BudgetPeriod,
		IsActive:           acct.IsActive,
		IsOverBudget:       acct.IsOverBudget(),
		KeyName:            key.KeyName,
		AllowedModels:      key.AllowedModels,
	})
}
