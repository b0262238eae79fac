package service

import (
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/medconsensus-server/internal/domain"
)

// DefaultSessionCacheSize bounds the number of results kept per process.
const DefaultSessionCacheSize = 4096

// SessionCacheStats reports session cache effectiveness.
type SessionCacheStats struct {
	Entries   int       `json:"entries"`
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Writes    int64     `json:"writes"`
	LastReset time.Time `json:"last_reset"`
}

// SessionCache maps canonical pair/triple keys to their last computed result.
// Readers never block writers; concurrent writes for a key are last writer wins.
type SessionCache struct {
	entries   *lru.Cache[string, *domain.InteractionResult]
	hits      atomic.Int64
	misses    atomic.Int64
	writes    atomic.Int64
	lastReset atomic.Int64
}

// NewSessionCache creates a session cache; size <= 0 uses DefaultSessionCacheSize.
func NewSessionCache(size int) (*SessionCache, error) {
	if size <= 0 {
		size = DefaultSessionCacheSize
	}
	entries, err := lru.New[string, *domain.InteractionResult](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	c := &SessionCache{entries: entries}
	c.lastReset.Store(time.Now().UnixNano())
	return c, nil
}

// Get returns the cached result for key.
func (c *SessionCache) Get(key string) (*domain.InteractionResult, bool) {
	result, ok := c.entries.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return result, ok
}

// Put upserts the result for key. Nil results are ignored.
func (c *SessionCache) Put(key string, result *domain.InteractionResult) {
	if result == nil {
		return
	}
	c.entries.Add(key, result)
	c.writes.Add(1)
}

// Delete removes key from the cache.
func (c *SessionCache) Delete(key string) {
	c.entries.Remove(key)
}

// Len returns the number of cached results.
func (c *SessionCache) Len() int {
	return c.entries.Len()
}

// Clear drops every entry and resets the counters.
func (c *SessionCache) Clear() {
	c.entries.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
	c.writes.Store(0)
	c.lastReset.Store(time.Now().UnixNano())
}

// Stats returns a snapshot of the cache counters.
func (c *SessionCache) Stats() SessionCacheStats {
	return SessionCacheStats{
		Entries:   c.entries.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Writes:    c.writes.Load(),
		LastReset: time.Unix(0, c.lastReset.Load()),
	}
}
