package dataloader

import (
	"container/list"
	"fmt"
	"sync"
)

// Cache is an LRU cache of decoded CHW image data keyed by file path. It can
// be shared across loaders so the train, validation and test splits reuse the
// same decoded images.
type Cache struct {
	mu      sync.Mutex
	entries map[string][]float32
	lru     *list.List
	lruMap  map[string]*list.Element
	maxSize int

	hits   int64
	misses int64
}

// NewCache creates a cache holding at most maxSize decoded images.
func NewCache(maxSize int) *Cache {
	return &Cache{
		entries: make(map[string][]float32),
		lru:     list.New(),
		lruMap:  make(map[string]*list.Element),
		maxSize: maxSize,
	}
}

// Get returns the decoded data for a path, marking it most recently used.
func (c *Cache) Get(path string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if data, ok := c.entries[path]; ok {
		if elem, ok := c.lruMap[path]; ok {
			c.lru.MoveToFront(elem)
		}
		c.hits++
		return data, true
	}
	c.misses++
	return nil, false
}

// Put stores decoded data, evicting the least recently used entries when the
// cache is full.
func (c *Cache) Put(path string, data []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[path]; ok {
		if elem, ok := c.lruMap[path]; ok {
			c.lru.MoveToFront(elem)
		}
		return
	}

	elem := c.lru.PushFront(path)
	c.lruMap[path] = elem
	c.entries[path] = data

	for len(c.entries) > c.maxSize && c.lru.Len() > 0 {
		oldest := c.lru.Back()
		key := oldest.Value.(string)
		c.lru.Remove(oldest)
		delete(c.lruMap, key)
		delete(c.entries, key)
	}
}

// Clear drops all entries but keeps cumulative statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string][]float32)
	c.lru = list.New()
	c.lruMap = make(map[string]*list.Element)
}

// Stats returns a snapshot of cache usage.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	hitRate := 0.0
	if total > 0 {
		hitRate = float64(c.hits) / float64(total) * 100
	}
	return CacheStats{
		Size:    len(c.entries),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: hitRate,
	}
}

// CacheStats holds cache usage counters.
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    int64
	Misses  int64
	HitRate float64
}

func (cs CacheStats) String() string {
	return fmt.Sprintf("Cache: %d/%d items, Hits: %d, Misses: %d, Hit Rate: %.1f%%",
		cs.Size, cs.MaxSize, cs.Hits, cs.Misses, cs.HitRate)
}
