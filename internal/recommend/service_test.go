package recommend

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/cache"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(clock *fakeClock) *ResultCache {
	client := cache.NewMemoryClient(100, cache.WithClock(clock.Now))
	return NewResultCache(client, ResultCacheConfig{TTL: time.Hour, Clock: clock.Now})
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "homeshopping:kok_recommendation:k:5:product_id:123", CacheKey(123, 5))
}

func TestResultCache_RoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	rc := newTestCache(clock)

	d := 0.25
	products := []domain.DisplayRecord{
		{ID: 1, Name: "XX 사골곰탕 국물", StoreName: "XX식품", Price: 10000, DiscountedPrice: 8000, DiscountRate: 20, Distance: &d},
		{ID: 4, Name: "진한 곰탕", Price: 8000, DiscountedPrice: 8000},
	}
	require.NoError(t, rc.Set(ctx, 100, 5, products))

	got, ok := rc.Get(ctx, 100, 5)
	require.True(t, ok)
	assert.Equal(t, products, got)

	_, ok = rc.Get(ctx, 100, 10)
	assert.False(t, ok, "k is part of the key")

	clock.Advance(59 * time.Minute)
	_, ok = rc.Get(ctx, 100, 5)
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok = rc.Get(ctx, 100, 5)
	assert.False(t, ok, "expired at TTL")
}

func TestResultCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	rc := newTestCache(newFakeClock())
	products := []domain.DisplayRecord{{ID: 1}}

	require.NoError(t, rc.Set(ctx, 7, 5, products))
	require.NoError(t, rc.Set(ctx, 7, 10, products))
	require.NoError(t, rc.Set(ctx, 77, 5, products))

	id := domain.ProductID(7)
	n, err := rc.Invalidate(ctx, &id)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, ok := rc.Get(ctx, 77, 5)
	assert.True(t, ok)

	n, err = rc.Invalidate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestResultCache_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	client := cache.NewMemoryClient(10, cache.WithClock(clock.Now))
	rc := NewResultCache(client, ResultCacheConfig{Clock: clock.Now})

	require.NoError(t, client.Set(ctx, CacheKey(1, 5), []byte("{not json"), time.Hour))
	_, ok := rc.Get(ctx, 1, 5)
	assert.False(t, ok)
}

func TestService_CachesCompletedResults(t *testing.T) {
	ctx := context.Background()
	ranker := &distanceRanker{distance: map[domain.ProductID]float64{1: 0.3, 2: 0.1, 4: 0.2}}
	svc := NewService(newTestOrchestrator(seedCatalog(), nil, ranker), newTestCache(newFakeClock()), nil)

	first, err := svc.Recommend(ctx, 100, 5)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, ranker.Calls())

	second, err := svc.Recommend(ctx, 100, 5)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, StateDone, second.State)
	assert.Equal(t, productIDs(first.Products), productIDs(second.Products))
	assert.Equal(t, 1, ranker.Calls(), "served from cache")

	refreshed, err := svc.Refresh(ctx, 100, 5)
	require.NoError(t, err)
	assert.False(t, refreshed.Cached)
	assert.Equal(t, 2, ranker.Calls())
}

func TestService_ClampedKSharesCacheEntry(t *testing.T) {
	ctx := context.Background()
	ranker := &distanceRanker{distance: map[domain.ProductID]float64{1: 0.3, 4: 0.2}}
	svc := NewService(newTestOrchestrator(seedCatalog(), nil, ranker), newTestCache(newFakeClock()), nil)

	_, err := svc.Recommend(ctx, 100, 20)
	require.NoError(t, err)
	res, err := svc.Recommend(ctx, 100, 99)
	require.NoError(t, err)
	assert.True(t, res.Cached)
}

func TestService_DoesNotCacheFallback(t *testing.T) {
	ctx := context.Background()
	gate := &stubGate{err: errors.New("db down")}
	rc := newTestCache(newFakeClock())
	svc := NewService(newTestOrchestrator(seedCatalog(), gate, &distanceRanker{}), rc, nil)

	res, err := svc.Recommend(ctx, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, StateFallback, res.State)

	_, ok := rc.Get(ctx, 100, 5)
	assert.False(t, ok)
}

func TestService_DoesNotCacheEmptyResults(t *testing.T) {
	ctx := context.Background()
	ranker := &distanceRanker{distance: map[domain.ProductID]float64{2: 0.1}}
	rc := newTestCache(newFakeClock())
	svc := NewService(newTestOrchestrator(seedCatalog(), nil, ranker), rc, nil)

	res, err := svc.Recommend(ctx, 100, 5)
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)
	assert.Empty(t, res.Products)

	_, ok := rc.Get(ctx, 100, 5)
	assert.False(t, ok)
}

func TestService_InvalidInputAndNoCache(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newTestOrchestrator(seedCatalog(), nil, &distanceRanker{}), nil, nil)

	_, err := svc.Recommend(ctx, 100, 0)
	assert.True(t, domain.IsType(err, domain.ErrorTypeInvalidInput))

	n, err := svc.Invalidate(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWarmer_Warm(t *testing.T) {
	ctx := context.Background()
	ranker := &distanceRanker{distance: map[domain.ProductID]float64{1: 0.3, 2: 0.1, 4: 0.2}}
	rc := newTestCache(newFakeClock())
	svc := NewService(newTestOrchestrator(seedCatalog(), nil, ranker), rc, nil)
	warmer := NewWarmer(svc, 2, time.Minute, nil)

	var (
		mu   sync.Mutex
		seen []domain.ProductID
	)
	results, err := warmer.Warm(ctx, []domain.ProductID{100, 555, 300}, 5, func(r WarmResult) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.ID)
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, domain.ProductID(100), results[0].ID)
	assert.Equal(t, StateDone, results[0].State)
	assert.Equal(t, 2, results[0].Count)

	assert.True(t, domain.IsType(results[1].Err, domain.ErrorTypeInvalidInput))

	assert.Equal(t, StateFallback, results[2].State)
	assert.NoError(t, results[2].Err)

	assert.ElementsMatch(t, []domain.ProductID{100, 555, 300}, seen)

	_, ok := rc.Get(ctx, 100, 5)
	assert.True(t, ok)
	_, ok = rc.Get(ctx, 300, 5)
	assert.False(t, ok)
}

func TestWarmer_Empty(t *testing.T) {
	warmer := NewWarmer(NewService(newTestOrchestrator(seedCatalog(), nil, &distanceRanker{}), nil, nil), 0, 0, nil)
	results, err := warmer.Warm(context.Background(), nil, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
