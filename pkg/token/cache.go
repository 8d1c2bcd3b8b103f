package token

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Cache wraps a Catalog with a per-entry TTL, refreshed lazily on read. It
// is a plain struct passed by reference to whoever needs it; a stale entry
// is served when the upstream catalog is unreachable.
type Cache struct {
	src Catalog
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	tok       Token
	fetchedAt time.Time
}

func NewCache(src Catalog, ttl time.Duration) *Cache {
	return &Cache{
		src:     src,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cacheEntry{},
	}
}

func (c *Cache) Lookup(ctx context.Context, code string) (Token, error) {
	key := strings.ToUpper(strings.TrimSpace(code))
	c.mu.Lock()
	ent, ok := c.entries[key]
	c.mu.Unlock()

	if ok && c.now().Sub(ent.fetchedAt) < c.ttl {
		return ent.tok, nil
	}

	tok, err := c.src.Lookup(ctx, key)
	if err != nil {
		if ok {
			return ent.tok, nil
		}
		return Token{}, err
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{tok: tok, fetchedAt: c.now()}
	c.mu.Unlock()
	return tok, nil
}
