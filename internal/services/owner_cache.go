package services

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedOwnerResolver memoizes successful lookups of another resolver.
// Failures are never cached.
type CachedOwnerResolver struct {
	next  OwnerResolver
	ids   *gocache.Cache
	names *gocache.Cache
}

// NewCachedOwnerResolver wraps next with a cache whose entries expire after ttl.
func NewCachedOwnerResolver(next OwnerResolver, ttl time.Duration) *CachedOwnerResolver {
	return &CachedOwnerResolver{
		next:  next,
		ids:   gocache.New(ttl, 2*ttl),
		names: gocache.New(ttl, 2*ttl),
	}
}

// ResolveID returns the cached id of name, asking the wrapped resolver on a miss.
func (c *CachedOwnerResolver) ResolveID(ctx context.Context, name string) (string, error) {
	if v, ok := c.ids.Get(name); ok {
		return v.(string), nil
	}
	id, err := c.next.ResolveID(ctx, name)
	if err != nil {
		return "", err
	}
	c.remember(id, name)
	return id, nil
}

// ResolveName returns the cached name of id, asking the wrapped resolver on a miss.
func (c *CachedOwnerResolver) ResolveName(ctx context.Context, id string) (string, error) {
	if v, ok := c.names.Get(id); ok {
		return v.(string), nil
	}
	name, err := c.next.ResolveName(ctx, id)
	if err != nil {
		return "", err
	}
	c.remember(id, name)
	return name, nil
}

func (c *CachedOwnerResolver) remember(id, name string) {
	c.ids.SetDefault(name, id)
	c.names.SetDefault(id, name)
}
