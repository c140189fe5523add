// Package cache provides a small in-memory cache with per-item expiry.
package cache

import (
	"sync"
	"time"
)

// Item is a cached value with its expiry.
type Item[V any] struct {
	Key       string
	Value     V
	ExpireAt  time.Time
	CreatedAt time.Time
}

// Cache is an in-memory cache with expiration and an optional size limit.
// When the limit is exceeded the oldest entry is evicted.
type Cache[V any] struct {
	items      map[string]*Item[V]
	mutex      sync.RWMutex
	maxItems   int
	defaultTTL time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

// New creates a cache. A positive cleanupInterval starts a goroutine that
// drops expired items until Close is called.
func New[V any](defaultTTL time.Duration, maxItems int, cleanupInterval time.Duration) *Cache[V] {
	c := &Cache[V]{
		items:      make(map[string]*Item[V]),
		maxItems:   maxItems,
		defaultTTL: defaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.startCleanupRoutine(cleanupInterval)
	}
	return c
}

// Set adds an item to the cache with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL adds an item to the cache with the given TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	c.items[key] = &Item[V]{
		Key:       key,
		Value:     value,
		ExpireAt:  now.Add(ttl),
		CreatedAt: now,
	}

	if c.maxItems > 0 && len(c.items) > c.maxItems {
		c.evictOldest()
	}
}

// Get retrieves an unexpired item.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var zero V
	item, exists := c.items[key]
	if !exists {
		return zero, false
	}
	if c.now().After(item.ExpireAt) {
		return zero, false
	}
	return item.Value, true
}

// GetOrSet returns the cached value, or computes and caches it. Errors from
// valueFunc are returned and nothing is cached.
func (c *Cache[V]) GetOrSet(key string, valueFunc func() (V, error)) (V, error) {
	if value, found := c.Get(key); found {
		return value, nil
	}
	value, err := valueFunc()
	if err != nil {
		return value, err
	}
	c.Set(key, value)
	return value, nil
}

// Delete removes an item.
func (c *Cache[V]) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
}

// Clear removes every item.
func (c *Cache[V]) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.items = make(map[string]*Item[V])
}

// Len returns the number of stored items, expired or not.
func (c *Cache[V]) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.items)
}

// Cleanup drops expired items and returns how many were removed.
func (c *Cache[V]) Cleanup() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if now.After(item.ExpireAt) {
			delete(c.items, key)
			removed++
		}
	}
	return removed
}

// Close stops the cleanup goroutine.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evictOldest must be called with the write lock held.
func (c *Cache[V]) evictOldest() {
	var oldestKey string
	var oldest time.Time
	for key, item := range c.items {
		if oldestKey == "" || item.CreatedAt.Before(oldest) {
			oldestKey, oldest = key, item.CreatedAt
		}
	}
	delete(c.items, oldestKey)
}

func (c *Cache[V]) startCleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.stop:
			return
		}
	}
}
