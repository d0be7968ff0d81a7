// Package cache implements LRUCache (spec §4.4): a bounded,
// concurrent, write-through cache of decrypted entity plaintext inside a
// Processing Worker, with strict least-recently-used eviction on both
// Get and Put.
package cache

import (
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCapacity is the default maximum entry count (spec §4.4: "on the
// order of 1 024").
const DefaultCapacity = 1024

// Entry is the cached value for one (database, key) pair.
type Entry struct {
	Plaintext []byte
	Version   int64
}

type entityKey struct {
	database string
	key      string
}

// Cache is a strict-LRU, write-through cache. The underlying
// hashicorp/golang-lru implementation is already safe for concurrent use,
// refreshes recency on both Add and Get, and evicts the least recently
// used entry on Add, matching the spec's "both Get and Put count as uses"
// requirement.
type Cache struct {
	inner *lru.Cache
}

// New constructs a Cache with the given capacity. capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	inner, err := lru.New(capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get returns the cached entry for (database, key), if present. A hit
// refreshes its recency, per strict-LRU semantics.
func (c *Cache) Get(database, key string) (Entry, bool) {
	v, ok := c.inner.Get(entityKey{database, key})
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Put writes through the just-written (or just-read) plaintext and
// version for (database, key), evicting the least-recently-used entry if
// the cache is at capacity.
func (c *Cache) Put(database, key string, entry Entry) {
	c.inner.Add(entityKey{database, key}, entry)
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	return c.inner.Len()
}
