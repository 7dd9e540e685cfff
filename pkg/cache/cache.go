package cache

import (
	"context"
	"time"
)

// DefaultTTL is the default lifetime for membership and permission entries.
// Short on purpose: the cache is an accelerator, deletion on mutation is the
// correctness mechanism and the TTL only bounds the damage of a missed delete.
const DefaultTTL = 30 * time.Second

// Cache is the injected cache capability. Implementations must treat every
// operation as best-effort from the caller's point of view: a cache failure
// is never a reason to fail an authorization decision.
type Cache interface {
	// Get returns the cached value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeletePrefix removes every key beginning with prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Nop is a Cache that stores nothing. Every Get is a miss and every mutation
// succeeds. Tests use it to force engines onto the database path.
type Nop struct{}

// NewNop creates a no-op cache.
func NewNop() *Nop {
	return &Nop{}
}

func (n *Nop) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }

func (n *Nop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

func (n *Nop) Delete(ctx context.Context, keys ...string) error      { return nil }
func (n *Nop) DeletePrefix(ctx context.Context, prefix string) error { return nil }
func (n *Nop) Close() error                                          { return nil }
