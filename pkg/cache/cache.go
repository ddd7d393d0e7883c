// ABOUTME: Generic per-document cache with at-most-once computation per key
// ABOUTME: Backs both the section cache and the result cache of the engine

package cache

import (
	"container/list"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Key identifies an entry by document and a name within it. The name is a
// section tag for section caches and the raw expression for result caches.
type Key struct {
	Document string
	Name     string
}

// String renders the key for singleflight. NUL cannot appear in a document
// id or a path expression, so the rendering is unambiguous.
func (k Key) String() string {
	return k.Document + "\x00" + k.Name
}

// Stats is a snapshot of cache counters
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Evictions int64
}

// ComputeFunc produces the value for a missing key
type ComputeFunc[V any] func() (V, error)

type entry[V any] struct {
	key   Key
	value V
}

// Cache maps keys to values. With no entry bound it grows until cleared.
type Cache[V any] struct {
	mu         sync.Mutex
	entries    map[Key]*list.Element
	lru        *list.List
	maxEntries int
	epoch      uint64 // bumped by every clear so in-flight fills are dropped
	onEvict    func(Key)

	flight singleflight.Group

	hits      int64
	misses    int64
	evictions int64
}

// Option configures a Cache
type Option func(*options)

type options struct {
	maxEntries int
	onEvict    func(Key)
}

// WithMaxEntries bounds the cache; the least recently used entry is evicted
// first. Zero or negative means unbounded.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		o.maxEntries = n
	}
}

// WithEvictCallback is called, under the cache lock, for every LRU eviction
func WithEvictCallback(fn func(Key)) Option {
	return func(o *options) {
		o.onEvict = fn
	}
}

// New creates an empty cache
func New[V any](opts ...Option) *Cache[V] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[V]{
		entries:    make(map[Key]*list.Element),
		lru:        list.New(),
		maxEntries: o.maxEntries,
		onEvict:    o.onEvict,
	}
}

// Get returns the cached value for key
func (c *Cache[V]) Get(key Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.lru.MoveToFront(el)
		atomic.AddInt64(&c.hits, 1)
		return el.Value.(*entry[V]).value, true
	}
	atomic.AddInt64(&c.misses, 1)
	var zero V
	return zero, false
}

// Put stores value under key, replacing any previous value
func (c *Cache[V]) Put(key Key, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(key, value)
}

func (c *Cache[V]) putLocked(key Key, value V) {
	if el, ok := c.entries[key]; ok {
		el.Value.(*entry[V]).value = value
		c.lru.MoveToFront(el)
		return
	}
	c.entries[key] = c.lru.PushFront(&entry[V]{key: key, value: value})

	for c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		victim := oldest.Value.(*entry[V]).key
		c.lru.Remove(oldest)
		delete(c.entries, victim)
		atomic.AddInt64(&c.evictions, 1)
		if c.onEvict != nil {
			c.onEvict(victim)
		}
	}
}

type computed[V any] struct {
	value V
	hit   bool
}

// GetOrCompute returns the cached value for key, computing and storing it
// on a miss. Concurrent callers for the same key share one call to fn.
// Errors are returned to every waiting caller and never stored.
func (c *Cache[V]) GetOrCompute(key Key, fn ComputeFunc[V]) (V, bool, error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}

	res, err, _ := c.flight.Do(key.String(), func() (interface{}, error) {
		c.mu.Lock()
		if el, ok := c.entries[key]; ok {
			// Filled by a flight that finished after our Get
			c.lru.MoveToFront(el)
			v := el.Value.(*entry[V]).value
			c.mu.Unlock()
			return computed[V]{value: v, hit: true}, nil
		}
		epoch := c.epoch
		c.mu.Unlock()

		v, err := fn()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.epoch == epoch {
			c.putLocked(key, v)
		}
		c.mu.Unlock()
		return computed[V]{value: v}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}

	out := res.(computed[V])
	return out.value, out.hit, nil
}

// ClearDocument removes every entry of doc and returns how many were removed
func (c *Cache[V]) ClearDocument(doc string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	removed := 0
	for key, el := range c.entries {
		if key.Document == doc {
			c.lru.Remove(el)
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes every entry
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.epoch++
	c.entries = make(map[Key]*list.Element)
	c.lru.Init()
}

// Len returns the number of cached entries
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}
