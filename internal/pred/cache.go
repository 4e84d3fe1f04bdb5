package pred

import (
	"sync"

	"github.com/smilemakc/dagengine/internal/column"
)

// cacheKey identifies one dictionary-scan result: the scanned dictionary's
// identity plus the pattern and flags that produced it. Go has no
// thread-local storage, so unlike a per-thread scratch cache this is a
// process-wide map guarded by a mutex; entries are evicted per node
// execution via Cache.Reset rather than relying on thread teardown.
type cacheKey struct {
	dict    *column.Dictionary
	pattern string
	flags   string
}

// Cache is a Matcher that memoizes, for a given dictionary, the full
// per-entry match table for a given regex pattern and flags. Because a
// Dictionary is immutable and shared by reference, its pointer is a valid
// cache identity for as long as the cache is alive.
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey][]bool
}

// NewCache returns an empty regex dictionary-scan cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey][]bool)}
}

// Match returns, for every entry in dict, whether it matches pattern under
// flags, scanning and caching the whole dictionary on first use rather
// than one string at a time.
func (c *Cache) Match(dict *column.Dictionary, pattern, flags string) ([]bool, error) {
	key := cacheKey{dict: dict, pattern: pattern, flags: flags}

	c.mu.Lock()
	if table, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return table, nil
	}
	c.mu.Unlock()

	re, err := compileRegex(pattern, flags)
	if err != nil {
		return nil, err
	}
	table := make([]bool, len(dict.Entries))
	for i, s := range dict.Entries {
		table[i] = re.MatchString(s)
	}

	c.mu.Lock()
	c.entries[key] = table
	c.mu.Unlock()
	return table, nil
}

// Reset clears every cached table. The scheduler calls it at the start
// of every node execution; within a single node execution the cache
// stays warm, so repeated regex predicates over the same dictionary
// scan it only once.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[cacheKey][]bool)
	c.mu.Unlock()
}

// Len reports the number of cached (dictionary, pattern, flags) entries,
// exposed for tests asserting the scan-once property.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
