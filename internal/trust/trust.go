// Package trust provides a read-through cache in front of the trusted domain
// store.
package trust

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Store is the durable trusted-domain set.
type Store interface {
	AddTrustedDomain(ctx context.Context, domain string) error
	RemoveTrustedDomain(ctx context.Context, domain string) error
	IsTrusted(ctx context.Context, domain string) (bool, error)
}

// DefaultTTL bounds how long a membership answer is served from memory.  Another
// process may change the shared store in the meantime.
const DefaultTTL = 2 * time.Second

// Cache is a Store that remembers recent IsTrusted answers.  Writes go to the
// underlying store first and update the cache only after they commit, so a
// failed write never leaves a cached answer that the store does not hold.
type Cache struct {
	store Store
	cache *gocache.Cache
}

// type check
var _ Store = (*Cache)(nil)

// NewCache wraps s.  A non-positive ttl selects DefaultTTL.
func NewCache(s Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store: s,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// AddTrustedDomain implements the [Store] interface for *Cache.
func (c *Cache) AddTrustedDomain(ctx context.Context, domain string) error {
	if err := c.store.AddTrustedDomain(ctx, domain); err != nil {
		c.cache.Delete(domain)
		return err
	}
	c.cache.SetDefault(domain, true)
	return nil
}

// RemoveTrustedDomain implements the [Store] interface for *Cache.
func (c *Cache) RemoveTrustedDomain(ctx context.Context, domain string) error {
	if err := c.store.RemoveTrustedDomain(ctx, domain); err != nil {
		c.cache.Delete(domain)
		return err
	}
	c.cache.SetDefault(domain, false)
	return nil
}

// IsTrusted implements the [Store] interface for *Cache.
func (c *Cache) IsTrusted(ctx context.Context, domain string) (bool, error) {
	if v, ok := c.cache.Get(domain); ok {
		return v.(bool), nil
	}

	trusted, err := c.store.IsTrusted(ctx, domain)
	if err != nil {
		return false, err
	}
	c.cache.SetDefault(domain, trusted)
	return trusted, nil
}
