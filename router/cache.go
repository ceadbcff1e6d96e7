package router

import (
	"container/list"
	"sync"
	"time"

	"github.com/pantheon-ai/mnemo/memory"
)

// Cache sizing defaults. The TTL matches the fast tier's cache TTL, so a
// cached entry never outlives the copy it shadows.
const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 5 * time.Minute

	// janitorInterval is how often the background sweep drops expired
	// entries that no Get has touched since they expired.
	janitorInterval = time.Minute
)

// CacheStats reports cache effectiveness counters. Exposed through the
// router's Stats surface.
type CacheStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
}

// cacheEntry is one cached item, the tier it was read from, and the moment
// it stops being trustworthy.
type cacheEntry struct {
	id        string
	item      *memory.Item
	source    string
	expiresAt time.Time
}

func (e *cacheEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// itemCache is a synchronized LRU cache with per-entry TTL. Get drops
// expired entries lazily; a janitor goroutine sweeps the rest, so an idle
// cache does not pin dead items until their key is requested again.
//
// Entries are stored and returned as deep copies. Callers mutate retrieved
// items (access tracking does), and the cache must not observe that.
type itemCache struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front is the most recently used
	capacity int
	ttl      time.Duration

	hits      uint64
	misses    uint64
	evictions uint64

	stopOnce sync.Once
	stop     chan struct{}
}

// newItemCache creates a cache with the given capacity and TTL and starts
// its janitor. Zero or negative values fall back to the defaults.
func newItemCache(capacity int, ttl time.Duration) *itemCache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c := &itemCache{
		entries:  make(map[string]*list.Element),
		order:    list.New(),
		capacity: capacity,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}

	go c.janitor()

	return c
}

// get returns a copy of the cached item and the tier it came from. An
// expired entry is removed and reported as a miss.
func (c *itemCache) get(id string) (*memory.Item, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[id]
	if !ok {
		c.misses++
		return nil, "", false
	}

	entry := elem.Value.(*cacheEntry)
	if entry.expired(time.Now()) {
		c.removeElement(elem)
		c.misses++
		return nil, "", false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return entry.item.Clone(), entry.source, true
}

// put stores a copy of the item under its ID, replacing any previous entry
// and resetting its TTL. The oldest entry is evicted when the cache is at
// capacity.
func (c *itemCache) put(item *memory.Item, source string) {
	if item == nil || item.ID == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &cacheEntry{
		id:        item.ID,
		item:      item.Clone(),
		source:    source,
		expiresAt: time.Now().Add(c.ttl),
	}

	if elem, ok := c.entries[item.ID]; ok {
		elem.Value = entry
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}
	c.entries[item.ID] = c.order.PushFront(entry)
}

// remove drops the entry for the given ID, if present.
func (c *itemCache) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[id]; ok {
		c.removeElement(elem)
	}
}

// stats returns a snapshot of the cache counters.
func (c *itemCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return CacheStats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.order.Len(),
		Capacity:  c.capacity,
	}
}

// close stops the janitor. Safe to call more than once.
func (c *itemCache) close() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *itemCache) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	c.removeElement(oldest)
	c.evictions++
}

// removeElement unlinks an element from both the list and the index.
// Caller holds the lock.
func (c *itemCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry).id)
}

// janitor periodically sweeps expired entries until close is called.
func (c *itemCache) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep(time.Now())
		}
	}
}

// sweep walks the list from the least recently used end and drops every
// expired entry.
func (c *itemCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*cacheEntry).expired(now) {
			c.removeElement(elem)
		}
		elem = prev
	}
}
