// Package cache provides an in-memory TTL cache used for sessions and
// remote API responses.
package cache

import (
	"sync"
	"time"
)

// Entry is a cached value with its expiry.
type Entry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// IsExpired returns true if the entry has expired
func (e *Entry[V]) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Cache is an in-memory cache with per-entry TTL and a background sweep.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]*Entry[V]
	now     func() time.Time

	// OnEvict, if set, is called for entries removed by expiry.
	onEvict func(key string, value V)

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once // Ensures Stop() is idempotent
}

// Option configures a Cache.
type Option[V any] func(*Cache[V])

// WithCleanupInterval sets how often expired entries are swept (default: 1m).
func WithCleanupInterval[V any](d time.Duration) Option[V] {
	return func(c *Cache[V]) { c.cleanupInterval = d }
}

// WithOnEvict registers a callback for entries dropped by expiry.
func WithOnEvict[V any](fn func(key string, value V)) Option[V] {
	return func(c *Cache[V]) { c.onEvict = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock[V any](now func() time.Time) Option[V] {
	return func(c *Cache[V]) { c.now = now }
}

// New creates a cache and starts its cleanup goroutine. Call Stop to
// release it.
func New[V any](opts ...Option[V]) *Cache[V] {
	c := &Cache[V]{
		entries:         make(map[string]*Entry[V]),
		now:             time.Now,
		cleanupInterval: time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.cleanupLoop()
	return c
}

// Get retrieves a value. Expired entries are reported as missing.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	expired := exists && entry.IsExpired(c.now())
	var value V
	if exists {
		value = entry.Value
	}
	c.mu.RUnlock()

	if !exists || expired {
		var zero V
		if exists {
			c.evictExpired(key, entry)
		}
		return zero, false
	}
	return value, true
}

// evictExpired removes entry if it is still the one stored under key.
func (c *Cache[V]) evictExpired(key string, entry *Entry[V]) {
	c.mu.Lock()
	cur, ok := c.entries[key]
	removed := ok && cur == entry
	if removed {
		delete(c.entries, key)
	}
	c.mu.Unlock()
	if removed && c.onEvict != nil {
		c.onEvict(key, entry.Value)
	}
}

// Set stores value under key for ttl.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	entry := &Entry[V]{Value: value, ExpiresAt: c.now().Add(ttl)}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
}

// Touch extends the expiry of an existing entry. It reports whether the
// entry was present and unexpired.
func (c *Cache[V]) Touch(key string, ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	entry, ok := c.entries[key]
	if !ok || entry.IsExpired(now) {
		return false
	}
	entry.ExpiresAt = now.Add(ttl)
	return true
}

// GetOrSet returns the cached value for key, storing the result of
// create when absent. create runs under the cache lock.
func (c *Cache[V]) GetOrSet(key string, ttl time.Duration, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if entry, ok := c.entries[key]; ok && !entry.IsExpired(now) {
		entry.ExpiresAt = now.Add(ttl)
		return entry.Value
	}
	v := create()
	c.entries[key] = &Entry[V]{Value: v, ExpiresAt: now.Add(ttl)}
	return v
}

// Invalidate removes an entry from the cache
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateAll removes all entries from the cache
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]*Entry[V])
	c.mu.Unlock()
}

// Range calls fn for every unexpired entry until fn returns false. fn
// runs without the cache lock held.
func (c *Cache[V]) Range(fn func(key string, value V) bool) {
	type kv struct {
		key   string
		value V
	}
	c.mu.RLock()
	now := c.now()
	live := make([]kv, 0, len(c.entries))
	for key, entry := range c.entries {
		if !entry.IsExpired(now) {
			live = append(live, kv{key, entry.Value})
		}
	}
	c.mu.RUnlock()

	for _, e := range live {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Take removes key and returns its value, if present.
func (c *Cache[V]) Take(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(c.entries, key)
	return entry.Value, true
}

// cleanupLoop periodically removes expired entries
func (c *Cache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// Cleanup removes all expired entries now.
func (c *Cache[V]) Cleanup() {
	type evicted struct {
		key   string
		value V
	}
	var gone []evicted

	c.mu.Lock()
	now := c.now()
	for key, entry := range c.entries {
		if entry.IsExpired(now) {
			delete(c.entries, key)
			gone = append(gone, evicted{key, entry.Value})
		}
	}
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, e := range gone {
			c.onEvict(e.key, e.value)
		}
	}
}

// Stop stops the background cleanup goroutine
// Safe to call multiple times
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Len returns the number of entries in the cache (for testing)
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
