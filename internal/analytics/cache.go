package analytics

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// Cache bounds
const (
	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheEntries = 100
)

type cacheEntry struct {
	key       string
	value     any
	expiresAt time.Time
}

// Cache is a process-local TTL cache with LRU eviction, used for computed
// analytics aggregates. Keys are "<lessonId>:<optionsJSON>" so a lesson's
// entries share a prefix and can be invalidated together.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List               // front = most recently used
	entries  map[string]*list.Element // key -> *cacheEntry element
}

// NewCache creates a Cache. Non-positive arguments fall back to defaults.
func NewCache(ttl time.Duration, capacity int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity <= 0 {
		capacity = DefaultCacheEntries
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the cached value if present and unexpired.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.value, true
}

// Set stores a value, evicting the least recently used entry on overflow.
func (c *Cache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.entries[key] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// InvalidatePrefix drops every entry whose key starts with prefix.
func (c *Cache) InvalidatePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, elem := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.order.Remove(elem)
			delete(c.entries, key)
		}
	}
}

// Clear drops everything.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Len reports the live entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
