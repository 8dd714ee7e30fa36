package devicecache

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryCache is a thread-safe in-memory Fetcher with an optional fallback
// source populated on miss.
type InMemoryCache[K comparable, V any] struct {
	mu       sync.RWMutex
	data     map[K]V
	fallback Fetcher[K, V]
}

// NewInMemoryCache creates an in-memory cache. A nil fallback makes misses
// plain errors.
func NewInMemoryCache[K comparable, V any](fallback Fetcher[K, V]) *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		data:     make(map[K]V),
		fallback: fallback,
	}
}

// Fetch returns the cached value, or pulls it from the fallback and caches it.
func (c *InMemoryCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	c.mu.RLock()
	value, ok := c.data[key]
	c.mu.RUnlock()
	if ok {
		return value, nil
	}

	if c.fallback == nil {
		var zero V
		return zero, fmt.Errorf("key '%v' not found in cache and no fallback is configured", key)
	}

	sourceValue, err := c.fallback.Fetch(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.data[key] = sourceValue
	c.mu.Unlock()
	return sourceValue, nil
}

// Set stores a value directly, bypassing the fallback.
func (c *InMemoryCache[K, V]) Set(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

// Close is a no-op for the in-memory cache but satisfies the Fetcher interface.
func (c *InMemoryCache[K, V]) Close() error {
	return nil
}
