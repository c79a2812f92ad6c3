package billing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/llmgate/internal/config"
	"github.com/amerfu/llmgate/internal/services/cache"
	"github.com/amerfu/llmgate/internal/services/pricing"
	"github.com/amerfu/llmgate/internal/services/providers"
)

func newPriceCache(t *testing.T) *cache.Cache {
	t.Helper()
	c := cache.New(config.CacheConfig{MaxEntries: 100, TTLSeconds: 300}, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func TestCachedPricesLoadsOnce(t *testing.T) {
	store := &fakePrices{price: gpt4oPrice()}
	prices := NewCachedPrices(newPriceCache(t), store)

	for i := 0; i < 3; i++ {
		p, err := prices.GetByModel(context.Background(), "gpt-4o")
		require.NoError(t, err)
		assert.Equal(t, "gpt-4o", p.ModelName)
	}
	assert.Equal(t, 1, store.calls, "rate card is served from cache after the first load")
}

func TestCachedPricesMissingPriceNotCached(t *testing.T) {
	store := &fakePrices{err: pricing.ErrPriceNotFound}
	prices := NewCachedPrices(newPriceCache(t), store)

	_, err := prices.GetByModel(context.Background(), "unpriced-model")
	assert.ErrorIs(t, err, pricing.ErrPriceNotFound)

	_, err = prices.GetByModel(context.Background(), "unpriced-model")
	assert.ErrorIs(t, err, pricing.ErrPriceNotFound)
	assert.Equal(t, 2, store.calls, "failed lookups are retried, never cached")
}

func TestCachedPricesInvalidationForcesReload(t *testing.T) {
	c := newPriceCache(t)
	store := &fakePrices{price: gpt4oPrice()}
	prices := NewCachedPrices(c, store)

	_, err := prices.GetByModel(context.Background(), "gpt-4o")
	require.NoError(t, err)

	updated := gpt4oPrice()
	updated.OutputRate = 2000
	store.price = updated
	c.Invalidate(cache.NamespacePrice, "gpt-4o")

	p, err := prices.GetByModel(context.Background(), "gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 2, store.calls)
	assert.Equal(t, 2000.0, p.OutputRate)
}

func TestLedgerSettlesThroughPriceCache(t *testing.T) {
	store := &fakePrices{price: gpt4oPrice()}
	debiter := &fakeDebiter{matched: true}
	ledger := NewLedger(NewCachedPrices(newPriceCache(t), store), debiter, &fakeAppender{}, &fakeBus{}, zap.NewNop())

	for i := 0; i < 2; i++ {
		record, err := ledger.Settle(context.Background(), Entry{
			UserID: "user-1",
			Model:  "gpt-4o",
			Usage:  providers.Usage{InputTokens: 1000},
		})
		require.NoError(t, err)
		assert.Equal(t, 1.0, record.CostUSD)
	}
	assert.Equal(t, 1, store.calls, "one store read covers both settles")
	assert.Equal(t, 2, debiter.calls)
}
