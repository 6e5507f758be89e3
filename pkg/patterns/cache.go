package patterns

import (
	"fmt"
	"sync"
)

// Cache manages lazy loading of registered pattern files so repeated finds
// of the same needle decode it once.
type Cache struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex
	stats   CacheStats
}

// CacheStats tracks cache performance.
type CacheStats struct {
	Hits   int64 // pattern already in memory
	Misses int64 // pattern had to be loaded
	Loads  int64 // total load operations
}

type cacheEntry struct {
	path    string
	pattern *Pattern
	mu      sync.Mutex
}

// NewCache creates an empty pattern cache.
func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
	}
}

// Register adds a pattern file under a lookup name. With preload set the
// image is decoded immediately; otherwise on first Get.
func (c *Cache) Register(name, path string, preload bool) error {
	c.mu.Lock()
	entry := &cacheEntry{path: path}
	c.entries[name] = entry
	c.mu.Unlock()

	if preload {
		_, err := c.Get(name)
		return err
	}
	return nil
}

// Get returns the pattern registered under name, loading it if necessary.
func (c *Cache) Get(name string) (*Pattern, error) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("pattern %q not registered", name)
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.pattern != nil {
		c.bump(func(s *CacheStats) { s.Hits++ })
		return entry.pattern, nil
	}

	pat, err := Load(entry.path)
	if err != nil {
		return nil, err
	}
	pat.Name = name
	entry.pattern = pat
	c.bump(func(s *CacheStats) { s.Misses++; s.Loads++ })
	return pat, nil
}

// Release drops the decoded image for name, keeping the registration.
func (c *Cache) Release(name string) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	entry.pattern = nil
	entry.mu.Unlock()
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Cache) bump(f func(*CacheStats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}
