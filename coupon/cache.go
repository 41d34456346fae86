package coupon

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"goflare.io/checkout/metrics"
	"goflare.io/checkout/models"
	"goflare.io/ember"
)

// Cache keeps coupon definitions in the multi-level cache. Code claim state
// is never cached. A nil *Cache always loads from the source; one without a
// store still collapses concurrent loads.
type Cache struct {
	store   *ember.MultiCache
	group   singleflight.Group
	metrics *metrics.Collector
	logger  *zap.Logger
}

func NewCache(store *ember.MultiCache, collector *metrics.Collector, logger *zap.Logger) *Cache {
	return &Cache{
		store:   store,
		metrics: collector,
		logger:  logger,
	}
}

func cacheKey(id string) string {
	return fmt.Sprintf("coupon:%s", id)
}

// Get returns the cached coupon or calls load, collapsing concurrent misses
// for the same id into one load.
func (c *Cache) Get(ctx context.Context, id string, load func(ctx context.Context) (*models.Coupon, error)) (*models.Coupon, error) {
	if c == nil {
		return load(ctx)
	}

	key := cacheKey(id)
	if c.store != nil {
		cached := &models.Coupon{}
		found, err := c.store.Get(ctx, key, cached)
		if err != nil {
			c.logger.Warn("Failed to get coupon from cache", zap.String("coupon_id", id), zap.Error(err))
		} else if found {
			c.metrics.RecordCache(true)
			return cached, nil
		}
		c.metrics.RecordCache(false)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		coupon, err := load(ctx)
		if err != nil {
			return nil, err
		}
		if c.store != nil {
			if err = c.store.Set(ctx, key, coupon); err != nil {
				c.logger.Warn("Failed to cache coupon", zap.String("coupon_id", id), zap.Error(err))
			}
		}
		return coupon, nil
	})
	if err != nil {
		return nil, err
	}

	// Copy so callers of the shared load never alias each other.
	coupon := *v.(*models.Coupon)
	return &coupon, nil
}

func (c *Cache) Invalidate(ctx context.Context, ids ...string) {
	if c == nil || c.store == nil {
		return
	}
	for _, id := range ids {
		if err := c.store.Delete(ctx, cacheKey(id)); err != nil {
			c.logger.Warn("Failed to invalidate cached coupon", zap.String("coupon_id", id), zap.Error(err))
		}
	}
}
