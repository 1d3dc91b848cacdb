package snap

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// cacheKey quantizes a fix to a ~1 m grid (1e-5 degrees) so nearby fixes
// share an entry.
func cacheKey(routeID string, lat, lng float64) string {
	var b strings.Builder
	b.WriteString(routeID)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(int64(lat*1e5), 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(int64(lng*1e5), 10))
	return b.String()
}

type cacheEntry struct {
	key      string
	result   Result
	storedAt time.Time
}

// fifoCache is a capacity-bounded snap-result cache. Eviction is oldest
// insertion first, deliberately not LRU. Entries are validated against TTL
// on read.
type fifoCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	entries  map[string]cacheEntry
	order    []string
	now      func() time.Time
}

func newFIFOCache(capacity int, ttl time.Duration) *fifoCache {
	return &fifoCache{
		capacity: capacity,
		ttl:      ttl,
		entries:  map[string]cacheEntry{},
		now:      time.Now,
	}
}

func (c *fifoCache) get(key string) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{}, false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		// Leave the stale entry for put to overwrite; its slot in the
		// insertion order stays unique.
		return Result{}, false
	}
	return e.result, true
}

func (c *fifoCache) put(key string, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists {
		for len(c.entries) >= c.capacity && len(c.order) > 0 {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{key: key, result: res, storedAt: c.now()}
}

func (c *fifoCache) purgePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.order[:0]
	for _, k := range c.order {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		} else {
			kept = append(kept, k)
		}
	}
	c.order = kept
}

func (c *fifoCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
