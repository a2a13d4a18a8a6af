package rowgen

import (
	"context"
	"sync"
)

// Loader seeds a uniqueness set for one table.
type Loader func(ctx context.Context, schemaName, table string) (*UniquenessSet, error)

type cacheKey struct {
	schema string
	table  string
}

// KeyCache keeps uniqueness sets across generation calls so repeated runs
// against the same table skip reseeding. Entries live until invalidated.
type KeyCache struct {
	mu   sync.Mutex
	sets map[cacheKey]*UniquenessSet
}

// NewKeyCache returns an empty cache.
func NewKeyCache() *KeyCache {
	return &KeyCache{sets: make(map[cacheKey]*UniquenessSet)}
}

// Get returns the cached set for (schemaName, table), loading it on first use.
func (c *KeyCache) Get(ctx context.Context, schemaName, table string, load Loader) (*UniquenessSet, error) {
	k := cacheKey{schema: schemaName, table: table}

	c.mu.Lock()
	set, ok := c.sets[k]
	c.mu.Unlock()
	if ok {
		return set, nil
	}

	set, err := load(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.sets[k]; ok {
		return existing, nil
	}
	c.sets[k] = set
	return set, nil
}

// Invalidate drops the entry for one table and reports whether it existed.
func (c *KeyCache) Invalidate(schemaName, table string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := cacheKey{schema: schemaName, table: table}
	_, ok := c.sets[k]
	delete(c.sets, k)
	return ok
}

// InvalidateSchema drops every entry for a schema and returns how many were removed.
func (c *KeyCache) InvalidateSchema(schemaName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.sets {
		if k.schema == schemaName {
			delete(c.sets, k)
			n++
		}
	}
	return n
}

// Reset drops every entry.
func (c *KeyCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = make(map[cacheKey]*UniquenessSet)
}

// Len returns the number of cached tables.
func (c *KeyCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sets)
}
