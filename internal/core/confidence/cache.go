package confidence

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// record is the cached pair of scalar projection and metadata for one node.
type record struct {
	Confidence float64
	Meta       *Metadata
}

// metadataCache is advisory only: the graph store stays the source of truth
// and every write goes through Put (invalidate-on-write). A multi-instance
// deployment swaps this for a shared implementation or a noop.
type metadataCache interface {
	Get(uuid string) (record, bool)
	Put(uuid string, rec record)
	Remove(uuid string)
}

type lruCache struct {
	lru *expirable.LRU[string, record]
}

func newLRUCache(size int, ttl time.Duration) *lruCache {
	return &lruCache{lru: expirable.NewLRU[string, record](size, nil, ttl)}
}

func (c *lruCache) Get(uuid string) (record, bool) {
	return c.lru.Get(uuid)
}

func (c *lruCache) Put(uuid string, rec record) {
	c.lru.Add(uuid, rec)
}

func (c *lruCache) Remove(uuid string) {
	c.lru.Remove(uuid)
}
