package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/observability"
)

// CacheNamespace prefixes every recommendation cache key.
const CacheNamespace = "homeshopping:kok_recommendation"

// ResultCache stores recommendation lists per (source id, k).
type ResultCache struct {
	client  cache.Client
	ttl     time.Duration
	clock   func() time.Time
	logger  *observability.Logger
	metrics *observability.Metrics
}

// ResultCacheConfig configures the result cache.
type ResultCacheConfig struct {
	TTL time.Duration
	// Clock defaults to time.Now.
	Clock   func() time.Time
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewResultCache creates a result cache over client.
func NewResultCache(client cache.Client, cfg ResultCacheConfig) *ResultCache {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger()
	}
	return &ResultCache{
		client:  client,
		ttl:     cfg.TTL,
		clock:   cfg.Clock,
		logger:  cfg.Logger.WithOperation("result_cache"),
		metrics: cfg.Metrics,
	}
}

// CacheKey returns the key for a source product and k.
func CacheKey(id domain.ProductID, k int) string {
	return cache.Key(CacheNamespace, "k", fmt.Sprint(k), "product_id", id.String())
}

// Get returns the cached products if present and unexpired.
func (c *ResultCache) Get(ctx context.Context, id domain.ProductID, k int) ([]domain.DisplayRecord, bool) {
	key := CacheKey(id, k)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("Cache get error")
		}
		c.metrics.RecordCache(false)
		return nil, false
	}

	var cached domain.CachedRecommendation
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to unmarshal cached recommendation")
		c.metrics.RecordCache(false)
		return nil, false
	}

	if !c.clock().Before(cached.ExpiresAt) {
		c.metrics.RecordCache(false)
		return nil, false
	}

	c.metrics.RecordCache(true)
	c.logger.WithContext(ctx).Debug().Str("key", key).Msg("Cache hit")
	if cached.Products == nil {
		cached.Products = []domain.DisplayRecord{}
	}
	return cached.Products, true
}

// Set stores products for a source product and k.
func (c *ResultCache) Set(ctx context.Context, id domain.ProductID, k int, products []domain.DisplayRecord) error {
	key := CacheKey(id, k)
	now := c.clock()
	data, err := json.Marshal(domain.CachedRecommendation{
		Products:  products,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal recommendation: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}

	c.logger.WithContext(ctx).Debug().Str("key", key).Dur("ttl", c.ttl).Msg("Cached recommendation")
	return nil
}

// Invalidate removes every entry for id, or the whole namespace when id is nil,
// and returns how many entries were removed.
func (c *ResultCache) Invalidate(ctx context.Context, id *domain.ProductID) (int, error) {
	pattern := cache.Key(CacheNamespace, "*")
	if id != nil {
		pattern = cache.Key(CacheNamespace, "k", "*", "product_id", id.String())
	}

	n, err := c.client.DeleteMatching(ctx, pattern)
	if err != nil {
		return n, fmt.Errorf("invalidate %s: %w", pattern, err)
	}

	c.logger.WithContext(ctx).Info().
		Str("pattern", pattern).
		Int("deleted", n).
		Msg("Invalidated recommendation cache")
	return n, nil
}
