package infra

import (
	"container/list"
	"sync"
	"time"
)

// Cache size limits to prevent unbounded memory growth
const (
	DefaultMaxCacheEntries = 1000            // Maximum number of cache entries
	DefaultCacheCleanup    = 5 * time.Minute // How often to sweep expired entries
)

// EvictReason tells an eviction callback why an entry left the cache.
type EvictReason string

const (
	EvictExpired  EvictReason = "expired"
	EvictCapacity EvictReason = "capacity"
)

type cacheEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// Cache is a typed LRU cache with per-entry TTL. It is safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = most recently used
	maxEntries int
	onEvict    func(key string, reason EvictReason)
	now        func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

// CacheOption configures a Cache.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	cleanupInterval time.Duration
	onEvict         func(key string, reason EvictReason)
	now             func() time.Time
}

// WithCleanupInterval sets how often expired entries are swept.
// A non-positive interval disables the background sweep.
func WithCleanupInterval(d time.Duration) CacheOption {
	return func(o *cacheOptions) { o.cleanupInterval = d }
}

// WithEvictCallback registers fn to be called for every expired or evicted entry.
// fn runs with the cache lock held and must not call back into the cache.
func WithEvictCallback(fn func(key string, reason EvictReason)) CacheOption {
	return func(o *cacheOptions) { o.onEvict = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) { o.now = now }
}

// NewCache creates a cache holding at most maxEntries values.
// Non-positive sizes fall back to DefaultMaxCacheEntries.
func NewCache[V any](maxEntries int, opts ...CacheOption) *Cache[V] {
	o := cacheOptions{
		cleanupInterval: DefaultCacheCleanup,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxCacheEntries
	}

	c := &Cache[V]{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		onEvict:    o.onEvict,
		now:        o.now,
		stopCh:     make(chan struct{}),
	}
	if o.cleanupInterval > 0 {
		go c.cleanupLoop(o.cleanupInterval)
	}
	return c
}

// Get returns the value for key if present and not expired, marking it recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	entry := elem.Value.(*cacheEntry[V])
	if !c.now().Before(entry.expiresAt) {
		c.removeElement(elem, EvictExpired)
		return zero, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set stores value under key for ttl, evicting the least recently used entry when full.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if elem, ok := c.items[key]; ok {
		entry := elem.Value.(*cacheEntry[V])
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&cacheEntry[V]{key: key, value: value, expiresAt: expiresAt})
	for c.order.Len() > c.maxEntries {
		c.removeElement(c.order.Back(), EvictCapacity)
	}
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Close stops the background sweep. It is safe to call more than once.
func (c *Cache[V]) Close() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
}

func (c *Cache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Sweep removes all expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if !now.Before(elem.Value.(*cacheEntry[V]).expiresAt) {
			c.removeElement(elem, EvictExpired)
			removed++
		}
		elem = prev
	}
	return removed
}

// removeElement must be called with c.mu held.
func (c *Cache[V]) removeElement(elem *list.Element, reason EvictReason) {
	entry := elem.Value.(*cacheEntry[V])
	c.order.Remove(elem)
	delete(c.items, entry.key)
	if c.onEvict != nil {
		c.onEvict(entry.key, reason)
	}
}
