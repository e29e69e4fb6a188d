// Package schemacache memoizes parsed schemas keyed by their raw text and
// parse options, bounded by entry count and access-time expiry.
package schemacache

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/kafkasr/schema-registry/internal/schema"
	"github.com/kafkasr/schema-registry/internal/storage"
)

// Key identifies a cached parse result: the same raw schema text parses
// differently depending on whether it's being validated fresh (isNew) and
// whether normalization was requested.
type Key struct {
	SchemaType storage.SchemaType
	RawSchema  string
	IsNew      bool
	Normalize  bool
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%t|%t|%s", k.SchemaType, k.IsNew, k.Normalize, k.RawSchema)
}

type entry struct {
	parsed   schema.ParsedSchema
	cachedAt time.Time
}

// Cache wraps a hashicorp/golang-lru cache with a per-entry expiry, configured
// from schema.cache.size and schema.cache.expiry.secs.
type Cache struct {
	mu     sync.Mutex
	lru    *lru.Cache
	expiry time.Duration
}

// New constructs a Cache holding up to size entries, each valid for expiry
// before being treated as a miss. expiry <= 0 disables expiry.
func New(size int, expiry time.Duration) (*Cache, error) {
	if size <= 0 {
		size = 1000
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("schemacache: %w", err)
	}
	return &Cache{lru: l, expiry: expiry}, nil
}

// Get returns the cached parse result for key, if present and not expired.
func (c *Cache) Get(key Key) (schema.ParsedSchema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key.String())
	if !ok {
		return nil, false
	}
	e := v.(entry)
	if c.expiry > 0 && time.Since(e.cachedAt) > c.expiry {
		c.lru.Remove(key.String())
		return nil, false
	}
	return e.parsed, true
}

// Put stores parsed under key, evicting the least-recently-used entry if the
// cache is full.
func (c *Cache) Put(key Key, parsed schema.ParsedSchema) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key.String(), entry{parsed: parsed, cachedAt: time.Now()})
}

// Len reports the number of entries currently cached, including any not yet
// evicted for expiry.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
