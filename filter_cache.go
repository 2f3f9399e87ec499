package vcore

import (
	"container/list"
	"sync"
)

// filterCacheEntry is one LRU node: a filter's canonical key mapped to the
// ids that matched it the last time it was fully scanned.
type filterCacheEntry struct {
	key string
	ids []string
}

// FilterCache is a bounded LRU cache from a filter's canonical shape to the
// set of record ids it matched (spec §4.3 "Filter Result Cache"). It is
// cleared in full on any store mutation, since a cached id list cannot be
// incrementally patched without re-running the filter.
type FilterCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	index    map[string]*list.Element

	hits   int64
	misses int64
}

// NewFilterCache returns a cache holding up to capacity filter shapes.
// capacity <= 0 disables the cache (Get always misses, Put is a no-op).
func NewFilterCache(capacity int) *FilterCache {
	return &FilterCache{
		capacity: capacity,
		ll:       list.New(),
		index:    make(map[string]*list.Element),
	}
}

// Get returns the cached id list for key, and whether it was present.
func (c *FilterCache) Get(key string) ([]string, bool) {
	if c.capacity <= 0 {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false
	}
	c.ll.MoveToFront(el)
	c.hits++
	entry := el.Value.(*filterCacheEntry)
	out := make([]string, len(entry.ids))
	copy(out, entry.ids)
	return out, true
}

// Put stores ids under key, evicting the least-recently-used entry if the
// cache is at capacity.
func (c *FilterCache) Put(key string, ids []string) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]string, len(ids))
	copy(stored, ids)

	if el, ok := c.index[key]; ok {
		el.Value.(*filterCacheEntry).ids = stored
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&filterCacheEntry{key: key, ids: stored})
	c.index[key] = el

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest == nil {
			break
		}
		c.ll.Remove(oldest)
		delete(c.index, oldest.Value.(*filterCacheEntry).key)
	}
}

// Clear empties the cache without resetting hit/miss counters (those are a
// lifetime diagnostic, not a cache-generation counter).
func (c *FilterCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ll.Init()
	c.index = make(map[string]*list.Element)
}

// FilterCacheStats is the diagnostic snapshot exposed alongside the Filter
// Stats Table (spec §4.3).
type FilterCacheStats struct {
	Size     int     `json:"size"`
	Capacity int     `json:"capacity"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hitRate"`
}

// Stats returns a point-in-time snapshot of cache occupancy and hit ratio.
func (c *FilterCache) Stats() FilterCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	var rate float64
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return FilterCacheStats{
		Size:     c.ll.Len(),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
		HitRate:  rate,
	}
}
