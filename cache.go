package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// cacheKey scopes an entry to a session and a query shape, e.g.
// "recent-messages:limit=8:skip=1".
type cacheKey struct {
	session uuid.UUID
	shape   string
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// ReadCache is a short-TTL memoization layer over store reads. Entries hold
// copies, never references, so cached data cannot be mutated through the
// cache. Expired entries are evicted lazily on read; writes evict eagerly
// via Invalidate.
//
// The TTL is a safety net, not the consistency mechanism: every write path
// must call Invalidate before returning, and a missed invalidation is a
// correctness bug even though the TTL eventually heals it.
type ReadCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[cacheKey]cacheEntry

	// now is stubbed in tests.
	now func() time.Time
}

// NewReadCache creates a cache with the given TTL.
func NewReadCache(ttl time.Duration) *ReadCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ReadCache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached value for (session, shape), or false on miss.
func (c *ReadCache) Get(session uuid.UUID, shape string) (any, bool) {
	key := cacheKey{session: session, shape: shape}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

// Put stores a value for (session, shape).
func (c *ReadCache) Put(session uuid.UUID, shape string, value any) {
	key := cacheKey{session: session, shape: shape}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		value:   value,
		expires: c.now().Add(c.ttl),
	}
}

// Invalidate removes every entry scoped to the session.
func (c *ReadCache) Invalidate(session uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.session == session {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of live entries, counting expired ones not yet
// evicted.
func (c *ReadCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
