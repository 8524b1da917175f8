// Package cache provides a fixed-capacity LRU cache with per-entry expiry, used for
// client credentials.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures a Cache.
type Options struct {
	// MaxSize is the number of entries the cache holds. Values below 1 are treated as 1.
	MaxSize int

	// CanPutWhenFull allows a Put into a full cache to evict the least recently used entry.
	// When false, Put on a full cache fails unless an expired entry can be dropped.
	CanPutWhenFull bool

	// DefaultTTL applies when Put is called with a zero TTL. Zero means entries never expire.
	DefaultTTL time.Duration

	// Clock returns the current time; defaults to time.Now.
	Clock func() time.Time

	// Recorder receives hit, miss and eviction events.
	Recorder Recorder
}

// Recorder observes cache activity.
type Recorder interface {
	Hit()
	Miss()
	Eviction()
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
	Rejected  uint64
	Size      int
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache is a concurrency-safe LRU cache with per-entry TTL.
type Cache[V any] struct {
	mu    sync.Mutex
	opts  Options
	items map[string]*list.Element
	order *list.List // front is most recently used

	hits, misses, evictions, expired, rejected atomic.Uint64
}

// New creates a cache.
func New[V any](opts Options) *Cache[V] {
	if opts.MaxSize < 1 {
		opts.MaxSize = 1
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Cache[V]{
		opts:  opts,
		items: make(map[string]*list.Element, opts.MaxSize),
		order: list.New(),
	}
}

// Get returns the value for key. Expired entries are removed and reported as missing.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	now := c.opts.Clock()

	c.mu.Lock()
	el, ok := c.items[key]
	if ok {
		e := el.Value.(*entry[V])
		if e.expired(now) {
			c.removeElement(el)
			c.expired.Add(1)
			ok = false
		} else {
			c.order.MoveToFront(el)
			zero = e.value
		}
	}
	c.mu.Unlock()

	if ok {
		c.hits.Add(1)
		if c.opts.Recorder != nil {
			c.opts.Recorder.Hit()
		}
	} else {
		c.misses.Add(1)
		if c.opts.Recorder != nil {
			c.opts.Recorder.Miss()
		}
	}
	return zero, ok
}

// Put stores value under key for ttl, or DefaultTTL when ttl is zero; a negative ttl never
// expires. An existing key has its value, expiry and recency refreshed. It returns false when
// the cache is full and the entry could not be stored.
func (c *Cache[V]) Put(key string, value V, ttl time.Duration) bool {
	if ttl == 0 {
		ttl = c.opts.DefaultTTL
	}
	now := c.opts.Clock()
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = now.Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.expiresAt = expiresAt
		c.order.MoveToFront(el)
		return true
	}

	if len(c.items) >= c.opts.MaxSize && !c.makeRoom(now) {
		c.rejected.Add(1)
		return false
	}

	c.items[key] = c.order.PushFront(&entry[V]{key: key, value: value, expiresAt: expiresAt})
	return true
}

// makeRoom frees one slot, preferring an expired entry over the least recently used one.
// Must be called with the mutex held.
func (c *Cache[V]) makeRoom(now time.Time) bool {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		if el.Value.(*entry[V]).expired(now) {
			c.removeElement(el)
			c.expired.Add(1)
			return true
		}
	}
	if !c.opts.CanPutWhenFull {
		return false
	}
	if back := c.order.Back(); back != nil {
		c.removeElement(back)
		c.evictions.Add(1)
		if c.opts.Recorder != nil {
			c.opts.Recorder.Eviction()
		}
	}
	return true
}

// Delete removes key and reports whether it was present.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok {
		c.removeElement(el)
	}
	return ok
}

// Purge removes every expired entry and returns how many were removed.
func (c *Cache[V]) Purge() int {
	now := c.opts.Clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*entry[V]).expired(now) {
			c.removeElement(el)
			n++
		}
		el = prev
	}
	c.expired.Add(uint64(n))
	return n
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element, c.opts.MaxSize)
	c.order.Init()
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Keys returns the keys from most to least recently used.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(*entry[V]).key)
	}
	return keys
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
		Rejected:  c.rejected.Load(),
		Size:      c.Len(),
	}
}

func (c *Cache[V]) removeElement(el *list.Element) {
	delete(c.items, el.Value.(*entry[V]).key)
	c.order.Remove(el)
}
