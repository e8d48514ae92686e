// Package resources owns loaded geometry: the cache keyed by variant name,
// and the loader that fetches payloads on demand, in a quiet background
// batch, or eagerly at startup, reporting progress as it goes.
package resources

import (
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/linkage/pkg/kernel"
)

// ErrNotCached is returned by Get for a variant that has not been loaded.
var ErrNotCached = errors.New("resources: geometry not cached")

// Cache holds loaded geometry by variant name. Entries are never evicted.
type Cache struct {
	mu    sync.RWMutex
	items map[string]*kernel.Mesh
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{items: make(map[string]*kernel.Mesh)}
}

// Has reports whether the variant's geometry is resident.
func (c *Cache) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.items[name]
	return ok
}

// Get returns the variant's geometry.
func (c *Cache) Get(name string) (*kernel.Mesh, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.items[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, name)
	}
	return m, nil
}

// Put stores geometry for a variant. The first writer wins: Put on a name
// that is already present leaves the entry unchanged and returns false.
func (c *Cache) Put(name string, m *kernel.Mesh) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[name]; ok {
		return false
	}
	c.items[name] = m
	return true
}

// Len returns the number of cached payloads.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
