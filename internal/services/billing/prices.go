package billing

import (
	"context"

	"github.com/amerfu/llmgate/internal/models"
	"github.com/amerfu/llmgate/internal/services/cache"
)

// CachedPrices resolves rate cards through the replica cache so settling a
// completion does not hit the store on every request. Lookup errors,
// including pricing.ErrPriceNotFound, pass through uncached; the price
// invalidations the admin surface publishes evict entries here.
type CachedPrices struct {
	cache *cache.Cache
	next  PriceLookup
}

func NewCachedPrices(c *cache.Cache, next PriceLookup) *CachedPrices {
	return &CachedPrices{cache: c, next: next}
}

func (p *CachedPrices) GetByModel(ctx context.Context, modelName string) (*models.ModelPrice, error) {
	v, err := p.cache.Get(ctx, cache.NamespacePrice, modelName, func(ctx context.Context) (interface{}, error) {
		return p.next.GetByModel(ctx, modelName)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ModelPrice), nil
}
