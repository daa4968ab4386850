// Package cache wraps ristretto as a small typed TTL cache.
package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

// TTLCache stores values of type V under string keys with a fixed TTL.
type TTLCache[V any] struct {
	store *ristretto.Cache
	ttl   time.Duration
}

// New creates a cache holding roughly maxItems entries.
func New[V any](maxItems int64, ttl time.Duration) (*TTLCache[V], error) {
	if maxItems <= 0 {
		maxItems = 1000
	}
	// Every entry costs 1, so MaxCost counts items.
	store, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &TTLCache[V]{store: store, ttl: ttl}, nil
}

func (c *TTLCache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil || c.store == nil {
		return zero, false
	}
	raw, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		return zero, false
	}
	return v, true
}

// Set stores v and waits until it is visible to Get.
func (c *TTLCache[V]) Set(key string, v V) {
	if c == nil || c.store == nil {
		return
	}
	if c.ttl > 0 {
		c.store.SetWithTTL(key, v, 1, c.ttl)
	} else {
		c.store.Set(key, v, 1)
	}
	c.store.Wait()
}

func (c *TTLCache[V]) Close() {
	if c == nil || c.store == nil {
		return
	}
	c.store.Close()
}
