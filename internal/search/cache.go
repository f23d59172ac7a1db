package search

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lyra-sh/lyrad/internal/appindex"
)

// cacheKey identifies one computed result list. The index generation is
// part of the key, so a refreshed index makes every older entry
// unreachable without purging anything on the refresh path.
type cacheKey struct {
	query      string
	generation uint64
}

type cacheEntry struct {
	results    []appindex.AppRecord
	capturedAt time.Time
}

// resultCache is a bounded LRU of ranked result lists. Cached slices are
// immutable; callers must copy before mutating.
type resultCache struct {
	entries *lru.Cache[cacheKey, cacheEntry]

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newResultCache(capacity int) (*resultCache, error) {
	entries, err := lru.New[cacheKey, cacheEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &resultCache{entries: entries}, nil
}

func (c *resultCache) get(key cacheKey) ([]appindex.AppRecord, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.results, true
}

func (c *resultCache) add(key cacheKey, results []appindex.AppRecord) {
	c.entries.Add(key, cacheEntry{results: results, capturedAt: time.Now()})
}

func (c *resultCache) purge() {
	c.entries.Purge()
}

// Stats reports advisory cache hit/miss counts.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Len    int    `json:"len"`
}

func (c *resultCache) stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Len:    c.entries.Len(),
	}
}
