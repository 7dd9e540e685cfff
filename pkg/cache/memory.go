package cache

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryEntries bounds the process-local cache. Authorization entries
// are small; 16k entries covers a large working set without meaningful memory
// pressure.
const DefaultMemoryEntries = 16384

// MemoryCache implements Cache on a process-local expirable LRU. Entries all
// share the TTL the cache was created with; Set's ttl argument is accepted
// for interface compatibility but the LRU's TTL wins.
type MemoryCache struct {
	cache *lru.LRU[string, []byte]
}

// NewMemoryCache creates a process-local cache. maxEntries <= 0 uses
// DefaultMemoryEntries; ttl <= 0 uses DefaultTTL.
func NewMemoryCache(maxEntries int, ttl time.Duration) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoryEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		cache: lru.NewLRU[string, []byte](maxEntries, nil, ttl),
	}
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, ok := c.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.cache.Add(key, value)
	return nil
}

func (c *MemoryCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		c.cache.Remove(key)
	}
	return nil
}

func (c *MemoryCache) DeletePrefix(ctx context.Context, prefix string) error {
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
	return nil
}

func (c *MemoryCache) Close() error {
	c.cache.Purge()
	return nil
}
