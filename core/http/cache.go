package http

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Response cache defaults
const (
	DefaultCacheTTL      = time.Minute
	DefaultCacheCapacity = 100
)

// CacheKey identifies an assembled response.
type CacheKey struct {
	Status      int
	ContentType string
	Body        string
}

type cacheEntry struct {
	response []byte
	created  time.Time
}

// ResponseCache stores assembled responses for a fixed TTL.
//
// Entries are keyed by status, content type and body only. A hit replays the
// stored bytes verbatim, so headers set by a later request (a fresh
// Set-Cookie, for instance) are not part of the replayed response.
//
// When full, inserting a new key evicts the oldest inserted entry. Refreshing
// a stale key keeps its original position. Reads do not affect eviction order.
type ResponseCache struct {
	mu       sync.Mutex
	entries  map[CacheKey]*cacheEntry
	order    *list.List // front = oldest insertion
	ttl      time.Duration
	capacity int
	now      func() time.Time

	hits   atomic.Uint64
	misses atomic.Uint64
}

// CacheOption configures a ResponseCache.
type CacheOption func(*ResponseCache)

// WithTTL sets how long an entry is served after it was stored.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ResponseCache) { c.ttl = ttl }
}

// WithCapacity sets the maximum number of entries (minimum 1).
func WithCapacity(n int) CacheOption {
	return func(c *ResponseCache) {
		if n < 1 {
			n = 1
		}
		c.capacity = n
	}
}

// WithClock replaces time.Now. Tests use it to step past the TTL.
func WithClock(now func() time.Time) CacheOption {
	return func(c *ResponseCache) { c.now = now }
}

// NewResponseCache creates an empty cache.
func NewResponseCache(opts ...CacheOption) *ResponseCache {
	c := &ResponseCache{
		entries:  make(map[CacheKey]*cacheEntry),
		order:    list.New(),
		ttl:      DefaultCacheTTL,
		capacity: DefaultCacheCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the stored response for key if it is younger than the TTL.
func (c *ResponseCache) Get(key CacheKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && c.now().Sub(e.created) < c.ttl {
		c.hits.Add(1)
		return e.response, true
	}
	c.misses.Add(1)
	return nil, false
}

// Put stores response under key.
func (c *ResponseCache) Put(key CacheKey, response []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		e.response = response
		e.created = now
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Front(); oldest != nil {
			delete(c.entries, oldest.Value.(CacheKey))
			c.order.Remove(oldest)
		}
	}

	c.order.PushBack(key)
	c.entries[key] = &cacheEntry{response: response, created: now}
}

// Len returns the number of stored entries, stale ones included.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the stored keys, oldest insertion first.
func (c *ResponseCache) Keys() []CacheKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]CacheKey, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(CacheKey))
	}
	return keys
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Size   int
}

func (c *ResponseCache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.Len(),
	}
}
