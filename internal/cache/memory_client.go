package cache

import (
	"context"
	"path"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryClient is a bounded in-process cache. Least recently used entries are
// evicted once MaxEntries is reached; expired entries are dropped on read.
type MemoryClient struct {
	mu    sync.Mutex
	data  *lru.Cache[string, cacheEntry]
	clock func() time.Time
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryOption configures a MemoryClient.
type MemoryOption func(*MemoryClient)

// WithClock overrides the time source used for expiry.
func WithClock(clock func() time.Time) MemoryOption {
	return func(c *MemoryClient) {
		c.clock = clock
	}
}

// NewMemoryClient creates a new in-memory cache client.
func NewMemoryClient(maxSize int, opts ...MemoryOption) *MemoryClient {
	if maxSize <= 0 {
		maxSize = 10000
	}

	// lru.New only fails for a non-positive size.
	data, _ := lru.New[string, cacheEntry](maxSize)

	c := &MemoryClient{
		data:  data,
		clock: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value from cache.
func (c *MemoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	if c.expired(entry) {
		c.data.Remove(key)
		return nil, ErrCacheMiss
	}
	return entry.value, nil
}

// Set stores a value in cache with TTL. A non-positive TTL never expires.
func (c *MemoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := cacheEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = c.clock().Add(ttl)
	}
	c.data.Add(key, entry)
	return nil
}

// Delete removes a value from cache.
func (c *MemoryClient) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data.Remove(key)
	return nil
}

// DeleteMatching removes live keys matching a glob pattern.
func (c *MemoryClient) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deleted := 0
	for _, key := range c.data.Keys() {
		ok, err := path.Match(pattern, key)
		if err != nil {
			return deleted, err
		}
		if !ok {
			continue
		}
		if entry, found := c.data.Peek(key); found && !c.expired(entry) {
			deleted++
		}
		c.data.Remove(key)
	}
	return deleted, nil
}

// Len reports the number of stored entries, including expired ones not yet evicted.
func (c *MemoryClient) Len() int {
	return c.data.Len()
}

// Close is a no-op for memory cache.
func (c *MemoryClient) Close() error {
	return nil
}

func (c *MemoryClient) expired(e cacheEntry) bool {
	return !e.expiresAt.IsZero() && !c.clock().Before(e.expiresAt)
}

var _ Client = (*MemoryClient)(nil)
