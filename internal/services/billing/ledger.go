package billing

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/services/cache"
	"github.com/amerfu/llmgate/internal/services/pricing"
	"github.com/amerfu/llmgate/internal/services/providers"
)

var (
	billedUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmgate_billed_usd_total",
			Help: "USD debited to accounts, by model",
		},
		[]string{"model"},
	)

	unknownPrice = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llmgate_unknown_price_total",
			Help: "Completions billed at zero because the model has no price record",
		},
	)
)

// PriceLookup resolves a model's rate card. A missing card is
// pricing.ErrPriceNotFound, every other error is a store failure.
type PriceLookup interface {
	GetByModel(ctx context.Context, modelName string) (*models.ModelPrice, error)
}

// Debiter applies one atomic conditional debit. matched=false means no
// active account row took the charge.
type Debiter interface {
	Debit(ctx context.Context, userID string, amountUSD float64) (bool, error)
}

// LogAppender persists one usage record.
type LogAppender interface {
	Append(ctx context.Context, entry *models.UsageLog) error
}

// Invalidator announces that a cached record went stale.
type Invalidator interface {
	Publish(ctx context.Context, namespace, id string) error
}

// Ledger turns a terminal request disposition into money and history:
// price, debit, invalidate, append, in that order. It never blocks a
// response on any of its failures; divergence between the account balance
// and the usage log is logged at error level for reconciliation.
type Ledger struct {
	prices   PriceLookup
	accounts Debiter
	usage    LogAppender
	bus      Invalidator
	logger   *zap.Logger
}

func NewLedger(prices PriceLookup, accounts Debiter, usage LogAppender, bus Invalidator, logger *zap.Logger) *Ledger {
	return &Ledger{
		prices:   prices,
		accounts: accounts,
		usage:    usage,
		bus:      bus,
		logger:   logger,
	}
}

// Entry is one terminal disposition: everything the ledger needs to price,
// debit, and record a request that reached an upstream driver.
type Entry struct {
	UserID       string
	Key          string
	Model        string
	Endpoint     string
	IPAddress    string
	Usage        providers.Usage
	Estimated    bool
	ProcessingMS float64
	ErrorMessage string

	// Failed marks requests whose upstream call produced no billable
	// completion. They are recorded at zero cost. Partial completions
	// (client disconnects, mid-stream upstream errors) are NOT failed: they
	// bill whatever usage was metered and carry an error message alongside.
	Failed bool

	RequestPayload  []byte
	ResponsePayload []byte
}

// Settle is called exactly once per request that reached a driver. Callers
// must hand it a context that survives client disconnect.
func (l *Ledger) Settle(ctx context.Context, e Entry) (*models.UsageLog, error) {
	var costUSD float64

	if !e.Failed {
		price, err := l.prices.GetByModel(ctx, e.Model)
		switch {
		case errors.Is(err, pricing.ErrPriceNotFound):
			unknownPrice.Inc()
			l.logger.Warn("No price record for model, billing zero",
				zap.String("model", e.Model),
				zap.String("user_id", e.UserID))
		case err != nil:
			l.logger.Error("Price lookup failed, billing zero",
				zap.String("model", e.Model),
				zap.String("user_id", e.UserID),
				zap.Error(err))
		default:
			costUSD = pricing.Cost(price, e.Usage)
		}
	}

	debited := false
	if costUSD > 0 {
		matched, err := l.accounts.Debit(ctx, e.UserID, costUSD)
		switch {
		case err != nil:
			l.logger.Error("Debit failed, account balance now lags the usage log",
				zap.String("user_id", e.UserID),
				zap.Float64("cost_usd", costUSD),
				zap.Error(err))
		case !matched:
			// Account deactivated between admission and settle. The usage
			// log still records the true cost.
			l.logger.Warn("Debit matched no active account",
				zap.String("user_id", e.UserID),
				zap.Float64("cost_usd", costUSD))
		default:
			debited = true
			billedUSD.WithLabelValues(e.Model).Add(costUSD)
			if err := l.bus.Publish(ctx, cache.NamespaceAccount, e.UserID); err != nil {
				l.logger.Warn("Failed to publish account invalidation",
					zap.String("user_id", e.UserID),
					zap.Error(err))
			}
		}
	}

	record := &models.UsageLog{
		UserID:       e.UserID,
		Key:          e.Key,
		Model:        e.Model,
		Endpoint:     e.Endpoint,
		IPAddress:    e.IPAddress,
		Timestamp:    time.Now().UTC(),
		CostUSD:      costUSD,
		IsCacheHit:   e.Usage.CacheReadTokens > 0,
		IsEstimated:  e.Estimated,
		ProcessingMS: e.ProcessingMS,
		ErrorMessage: e.ErrorMessage,
	}
	record.SetTokenCounts(e.Usage.InputTokens, e.Usage.OutputTokens, e.Usage.CacheReadTokens, e.Usage.CacheWriteTokens)
	if len(e.RequestPayload) > 0 {
		record.RequestPayload = datatypes.JSON(e.RequestPayload)
	}
	if len(e.ResponsePayload) > 0 {
		record.ResponsePayload = datatypes.JSON(e.ResponsePayload)
	}

	if err := l.usage.Append(ctx, record); err != nil {
		if debited {
			l.logger.Error("Usage log append failed after debit, account balance now leads the usage log",
				zap.String("user_id", e.UserID),
				zap.Float64("cost_usd", costUSD),
				zap.Error(err))
		} else {
			l.logger.Error("Usage log append failed",
				zap.String("user_id", e.UserID),
				zap.Error(err))
		}
		return nil, err
	}

	return record, nil
}
