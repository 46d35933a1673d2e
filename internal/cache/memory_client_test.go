package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

func TestMemoryClient_GetSetTTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewMemoryClient(10, WithClock(clock.Now))

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Hour))
	got, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	clock.Advance(59 * time.Minute)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss, "entry expires at exactly ttl")
	assert.Zero(t, c.Len())
}

func TestMemoryClient_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryClient(2)

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = c.Get(ctx, "a")
	assert.NoError(t, err)
}

func TestMemoryClient_DeleteMatching(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewMemoryClient(100, WithClock(clock.Now))

	for _, k := range []int{3, 5, 10} {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("ns:k:%d:product_id:7", k), []byte("x"), time.Hour))
	}
	require.NoError(t, c.Set(ctx, "ns:k:5:product_id:8", []byte("x"), time.Hour))
	require.NoError(t, c.Set(ctx, "ns:k:5:product_id:77", []byte("x"), time.Hour))
	require.NoError(t, c.Set(ctx, "other:1", []byte("x"), time.Hour))

	n, err := c.DeleteMatching(ctx, "ns:k:*:product_id:7")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = c.Get(ctx, "ns:k:5:product_id:77")
	assert.NoError(t, err, "id 77 must not match id 7")

	n, err = c.DeleteMatching(ctx, "ns:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.Get(ctx, "other:1")
	assert.NoError(t, err)
}

func TestMemoryClient_DeleteMatchingSkipsExpiredInCount(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := NewMemoryClient(100, WithClock(clock.Now))

	require.NoError(t, c.Set(ctx, "ns:old", []byte("x"), time.Minute))
	clock.Advance(2 * time.Minute)
	require.NoError(t, c.Set(ctx, "ns:new", []byte("x"), time.Minute))

	n, err := c.DeleteMatching(ctx, "ns:*")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, c.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a:b:c", Key("a", "b", "c"))
	assert.Equal(t, "solo", Key("solo"))
}
