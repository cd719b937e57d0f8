package auth

import (
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/goliatone/go-ingress/core"
)

// MemoryTokenCache is a copy-on-write map. Readers load the current snapshot
// without locking; writers serialise on mu and publish a new snapshot.
type MemoryTokenCache struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[map[string]core.CachedToken]
}

func NewMemoryTokenCache() *MemoryTokenCache {
	cache := &MemoryTokenCache{}
	empty := map[string]core.CachedToken{}
	cache.snapshot.Store(&empty)
	return cache
}

func (c *MemoryTokenCache) Get(key core.TokenKey) (core.CachedToken, bool) {
	current := c.snapshot.Load()
	if current == nil {
		return core.CachedToken{}, false
	}
	token, ok := (*current)[key.String()]
	return token, ok
}

func (c *MemoryTokenCache) Put(key core.TokenKey, token core.CachedToken) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.copyLocked()
	next[key.String()] = token
	c.snapshot.Store(&next)
}

func (c *MemoryTokenCache) Delete(key core.TokenKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.copyLocked()
	delete(next, key.String())
	c.snapshot.Store(&next)
}

func (c *MemoryTokenCache) copyLocked() map[string]core.CachedToken {
	current := c.snapshot.Load()
	if current == nil {
		return map[string]core.CachedToken{}
	}
	next := make(map[string]core.CachedToken, len(*current)+1)
	for key, token := range *current {
		next[key] = token
	}
	return next
}

// RistrettoTokenCache keeps tokens in a ristretto L1 cache. Entries carry no
// TTL: an expired token stays readable so a failed refresh can fall back to
// it, and freshness is decided by CachedToken.FreshAt. Capacity bounds the
// number of keys.
type RistrettoTokenCache struct {
	c *ristretto.Cache[string, core.CachedToken]
}

// NewRistrettoTokenCache sizes the cache by entry count; every token costs 1.
func NewRistrettoTokenCache(maxEntries int64) (*RistrettoTokenCache, error) {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, core.CachedToken]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoTokenCache{c: c}, nil
}

func (c *RistrettoTokenCache) Get(key core.TokenKey) (core.CachedToken, bool) {
	return c.c.Get(key.String())
}

func (c *RistrettoTokenCache) Put(key core.TokenKey, token core.CachedToken) {
	c.c.Set(key.String(), token, 1)
	c.c.Wait()
}

func (c *RistrettoTokenCache) Delete(key core.TokenKey) {
	c.c.Del(key.String())
}

func (c *RistrettoTokenCache) Close() {
	c.c.Close()
}

var (
	_ core.TokenCache = (*MemoryTokenCache)(nil)
	_ core.TokenCache = (*RistrettoTokenCache)(nil)
)
