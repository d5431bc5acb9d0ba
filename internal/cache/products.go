// Package cache provides a Redis read-through cache for catalog browse
// responses. Checkout pricing never reads from here: billing always
// re-resolves from the catalog.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/velesto/storefront/internal/domain/catalog"
)

// ErrMiss is returned when the key is absent from the cache.
var ErrMiss = errors.New("cache miss")

const productsKey = "catalog:variants"

// ProductCache caches the catalog browse listing with a jittered TTL so
// entries do not expire in lockstep.
type ProductCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewProductCache creates a ProductCache on the given Redis client.
func NewProductCache(client *redis.Client) *ProductCache {
	return &ProductCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

// Get returns the cached browse listing, or ErrMiss.
func (c *ProductCache) Get(ctx context.Context) ([]catalog.Variant, error) {
	data, err := c.client.Get(ctx, productsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var variants []catalog.Variant
	if err := json.Unmarshal(data, &variants); err != nil {
		return nil, fmt.Errorf("unmarshal cached variants: %w", err)
	}
	return variants, nil
}

// Set stores the browse listing with TTL jitter of up to 10%.
func (c *ProductCache) Set(ctx context.Context, variants []catalog.Variant) error {
	data, err := json.Marshal(variants)
	if err != nil {
		return fmt.Errorf("marshal variants: %w", err)
	}

	jitter := time.Duration(rand.Int64N(int64(c.baseTTL / 10)))
	if err := c.client.Set(ctx, productsKey, data, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate drops the cached listing, e.g. after a catalog mutation.
func (c *ProductCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, productsKey).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
