package service

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// ParentCache is a small in-memory LRU of parent entity ids (jobs by name and queue, routes by
// method and path) with per-entry TTL. It lets the collector skip the find-or-create round trip
// for parents it has already seen. Safe for concurrent use; a nil *ParentCache never hits.
type ParentCache struct {
	mu     sync.Mutex
	cap    int
	ttl    time.Duration
	ll     *list.List               // front = most-recently used
	items  map[string]*list.Element // key -> element
	now    func() time.Time
	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
}

type parentEntry struct {
	key    string
	id     int64
	expiry time.Time // zero means no expiry
}

// ParentCacheConfig groups constructor options.
type ParentCacheConfig struct {
	Capacity int
	TTL      time.Duration
	Now      func() time.Time
}

// DefaultParentCacheConfig returns the collector defaults.
func DefaultParentCacheConfig() ParentCacheConfig {
	return ParentCacheConfig{Capacity: 1024, TTL: 5 * time.Minute, Now: time.Now}
}

// NewParentCache creates a ParentCache.
func NewParentCache(cfg ParentCacheConfig) *ParentCache {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1024
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	return &ParentCache{
		cap:   capacity,
		ttl:   cfg.TTL,
		ll:    list.New(),
		items: make(map[string]*list.Element, capacity),
		now:   nowFn,
	}
}

func jobCacheKey(name, queue string) string { return "job\x00" + name + "\x00" + queue }

func routeCacheKey(method, path string) string { return "route\x00" + method + "\x00" + path }

// Get returns the id cached for key if present and not expired.
func (c *ParentCache) Get(key string) (int64, bool) {
	if c == nil {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		c.misses.Add(1)
		return 0, false
	}
	ent := el.Value.(*parentEntry)
	if c.isExpired(ent) {
		c.removeElement(el)
		c.misses.Add(1)
		return 0, false
	}
	c.ll.MoveToFront(el)
	c.hits.Add(1)
	return ent.id, true
}

// Set inserts or refreshes the id for key.
func (c *ParentCache) Set(key string, id int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}

	if el, found := c.items[key]; found {
		ent := el.Value.(*parentEntry)
		ent.id, ent.expiry = id, exp
		c.ll.MoveToFront(el)
		return
	}

	c.items[key] = c.ll.PushFront(&parentEntry{key: key, id: id, expiry: exp})
	for c.ll.Len() > c.cap {
		c.removeElement(c.ll.Back())
		c.evicts.Add(1)
	}
}

// Len returns the current number of entries.
func (c *ParentCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// ParentCacheStats are simple counters for observability.
type ParentCacheStats struct {
	Hits, Misses, Evictions uint64
	Size, Capacity          int
}

// Stats returns a snapshot of counters and sizes.
func (c *ParentCache) Stats() ParentCacheStats {
	if c == nil {
		return ParentCacheStats{}
	}
	return ParentCacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evicts.Load(),
		Size:      c.Len(),
		Capacity:  c.cap,
	}
}

// caller must hold c.mu
func (c *ParentCache) isExpired(e *parentEntry) bool {
	return !e.expiry.IsZero() && c.now().After(e.expiry)
}

// caller must hold c.mu
func (c *ParentCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	delete(c.items, el.Value.(*parentEntry).key)
}
