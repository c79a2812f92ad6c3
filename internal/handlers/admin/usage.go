package admin

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/services/account"
	"github.com/amerfu/llmgate/internal/services/providers"
	"github.com/amerfu/llmgate/internal/services/usage"
)

type UsageSummaryResponse struct {
	usage.Summary

	// Present when the account record still exists.
	CurrentBudgetUSD   *float64 `json:"current_budget_usd,omitempty"`
	CurrentSpentUSD    *float64 `json:"current_spent_usd,omitempty"`
	RemainingBudgetUSD *float64 `json:"remaining_budget_usd,omitempty"`
	BudgetExceeded     *bool    `json:"budget_exceeded,omitempty"`
}

// UsageHandler reports aggregated usage per tenant over a time window.
type UsageHandler struct {
	baseHandler
	usage    *usage.Service
	accounts *account.Service
}

func NewUsageHandler(usageSvc *usage.Service, accounts *account.Service, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		baseHandler: baseHandler{logger: logger},
		usage:       usageSvc,
		accounts:    accounts,
	}
}

func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")

	since, ok := h.parseDate(w, r.URL.Query().Get("start_date"), "start_date")
	if !ok {
		return
	}
	until, ok := h.parseDate(w, r.URL.Query().Get("end_date"), "end_date")
	if !ok {
		return
	}

	summary, err := h.usage.Summarize(r.Context(), userID, since, until)
	if err != nil {
		h.logger.Error("Failed to summarize usage", zap.String("user_id", userID), zap.Error(err))
		h.sendError(w, http.StatusInternalServerError, providers.TypeInternal, "Failed to summarize usage")
		return
	}

	resp := UsageSummaryResponse{Summary: *summary}
	acct, err := h.accounts.GetByUserID(r.Context(), userID)
	switch {
	case errors.Is(err, account.ErrAccountNotFound):
		// Logs can outlive their account; the totals still stand.
	case err != nil:
		h.logger.Warn("Failed to load account for usage summary",
			zap.String("user_id", userID), zap.Error(err))
	default:
		remaining := acct.RemainingBudget()
		over := acct.IsOverBudget()
		resp.CurrentBudgetUSD = &acct.BudgetUSD
		resp.CurrentSpentUSD = &acct.SpentUSD
		resp.RemainingBudgetUSD = &remaining
		resp.BudgetExceeded = &over
	}

	h.sendJSON(w, http.StatusOK, resp)
}

// parseDate accepts RFC 3339 timestamps or bare dates. Empty means
// unbounded.
func (h *UsageHandler) parseDate(w http.ResponseWriter, raw, name string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return &t, true
	}
	h.sendError(w, http.StatusBadRequest, providers.TypeInvalidRequest,
		name+" must be an RFC 3339 timestamp or YYYY-MM-DD date")
	return nil, false
}
