package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/portfolio-reconciler/internal/models"
	"github.com/redis/go-redis/v9"
)

// priceKeyPrefix namespaces price entries in Redis
const priceKeyPrefix = "price:"

// PriceCache stores fiat prices keyed by pricing identifier. Entries expire
// after the configured TTL, which doubles as the staleness window: an expired
// entry is simply a miss, so callers re-fetch. Prices are read many times per
// reconciliation cycle but fetched at most once per identifier per window.
type PriceCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewPriceCache creates a price cache on top of a Redis connection
func NewPriceCache(redisCache *RedisCache, ttl time.Duration) *PriceCache {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}

	return &PriceCache{
		redis: redisCache,
		ttl:   ttl,
	}
}

// Get returns the cached price for a pricing identifier.
// The second return value is false on a miss or expired entry.
func (c *PriceCache) Get(ctx context.Context, priceID string) (*models.CachedPrice, bool, error) {
	data, err := c.redis.Get(ctx, priceKeyPrefix+priceID)
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached price: %w", err)
	}

	var cached models.CachedPrice
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		// Corrupt entry: treat as a miss so it gets overwritten
		return nil, false, nil
	}

	return &cached, true, nil
}

// Set stores a price with the cache TTL
func (c *PriceCache) Set(ctx context.Context, priceID string, price float64, source string) error {
	cached := models.CachedPrice{
		Price:     price,
		Timestamp: time.Now().UTC(),
		Source:    source,
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal cached price: %w", err)
	}

	if err := c.redis.Set(ctx, priceKeyPrefix+priceID, data, c.ttl); err != nil {
		return fmt.Errorf("failed to write cached price: %w", err)
	}

	return nil
}

// Invalidate removes one cached price
func (c *PriceCache) Invalidate(ctx context.Context, priceID string) error {
	return c.redis.Del(ctx, priceKeyPrefix+priceID)
}

// Size returns the number of cached price entries
func (c *PriceCache) Size(ctx context.Context) (int, error) {
	keys, err := c.redis.Keys(ctx, priceKeyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to list cached prices: %w", err)
	}
	return len(keys), nil
}
