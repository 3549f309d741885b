package conversation

import (
	"sync"
	"sync/atomic"
	"time"
)

// Cache is a thread-safe TTL cache with least-recently-used eviction.
// Entries expire after ttl; when maxEntries is reached the least recently
// accessed entry is evicted. A background goroutine removes expired entries
// until Close is called.
type Cache[V any] struct {
	entries    map[string]*cacheEntry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu        sync.Mutex
	stopCh    chan struct{}
	closeOnce sync.Once

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

type cacheEntry[V any] struct {
	value          V
	expiresAt      time.Time
	lastAccessedAt time.Time
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// NewCache creates a cache. A ttl of 0 disables expiry; maxEntries of 0
// means unlimited size.
func NewCache[V any](ttl time.Duration, maxEntries int) *Cache[V] {
	c := &Cache[V]{
		entries:    make(map[string]*cacheEntry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		stopCh:     make(chan struct{}),
	}

	if ttl > 0 {
		interval := ttl / 2
		if interval < time.Second {
			interval = time.Second
		}
		go c.cleanupExpired(interval)
	}

	return c
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	now := c.now()
	if !ok || (c.ttl > 0 && now.After(entry.expiresAt)) {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	entry.lastAccessedAt = now
	c.hits.Add(1)
	return entry.value, true
}

// Set stores value under key, evicting the least recently used entry if the
// cache is full.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictLRU()
		}
	}

	now := c.now()
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = now.Add(c.ttl)
	}
	c.entries[key] = &cacheEntry[V]{value: value, expiresAt: expiresAt, lastAccessedAt: now}
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hit, miss and eviction counters.
func (c *Cache[V]) Stats() CacheStats {
	return CacheStats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// Close stops the background cleanup goroutine.
func (c *Cache[V]) Close() {
	c.closeOnce.Do(func() { close(c.stopCh) })
}

// evictLRU must be called with the lock held.
func (c *Cache[V]) evictLRU() {
	var oldestKey string
	var oldest time.Time
	for key, entry := range c.entries {
		if oldestKey == "" || entry.lastAccessedAt.Before(oldest) {
			oldestKey = key
			oldest = entry.lastAccessedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions.Add(1)
	}
}

func (c *Cache[V]) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Cache[V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
