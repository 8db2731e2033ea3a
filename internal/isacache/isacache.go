// Package isacache memoises subtype answers across graph generations.
package isacache

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultSize is the number of answers kept when no size is configured.
const DefaultSize = 1024

type key struct {
	typ    uint64
	target uint64
}

type answer struct {
	gen uint64
	ok  bool
}

// Cache stores IsA answers stamped with the graph generation they were
// computed against. Answers from older generations are ignored.
type Cache struct {
	lru *lru.Cache
	gen atomic.Uint64
}

// New returns a cache holding up to size answers. Size 0 disables caching.
func New(size int) (*Cache, error) {
	c := &Cache{}
	if size == 0 {
		return c, nil
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Generation returns the current generation.
func (c *Cache) Generation() uint64 {
	return c.gen.Load()
}

// Invalidate starts a new generation. Call it after every graph mutation.
func (c *Cache) Invalidate() {
	c.gen.Add(1)
}

// Get returns a cached answer valid for the current generation.
func (c *Cache) Get(typ, target uint64) (bool, bool) {
	if c == nil || c.lru == nil {
		return false, false
	}
	v, ok := c.lru.Get(key{typ: typ, target: target})
	if !ok {
		return false, false
	}
	a := v.(answer)
	if a.gen != c.gen.Load() {
		return false, false
	}
	return a.ok, true
}

// Put records an answer computed against generation gen.
func (c *Cache) Put(gen, typ, target uint64, ok bool) {
	if c == nil || c.lru == nil || gen != c.gen.Load() {
		return
	}
	c.lru.Add(key{typ: typ, target: target}, answer{gen: gen, ok: ok})
}

// Purge drops every cached answer.
func (c *Cache) Purge() {
	if c == nil || c.lru == nil {
		return
	}
	c.lru.Purge()
}

// Len reports the number of stored answers, including stale ones.
func (c *Cache) Len() int {
	if c == nil || c.lru == nil {
		return 0
	}
	return c.lru.Len()
}
