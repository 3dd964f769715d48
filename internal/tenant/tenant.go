// Package tenant resolves the X-Tenant header to a tenant row, with a small
// in-process cache so the hot webhook path does not hit the database for
// every event.
package tenant

import (
	"context"
	"sync"
	"time"

	"zapgw/internal/store"
)

const cacheTTL = 60 * time.Second

type Lookup interface {
	TenantBySlug(ctx context.Context, slug string) (store.Tenant, bool, error)
}

type Resolver struct {
	Lookup      Lookup
	DefaultSlug string

	mu    sync.RWMutex
	cache map[string]cached
}

type cached struct {
	tenant store.Tenant
	until  time.Time
}

func NewResolver(lookup Lookup, defaultSlug string) *Resolver {
	return &Resolver{Lookup: lookup, DefaultSlug: defaultSlug, cache: map[string]cached{}}
}

// Resolve maps a slug (or the configured default when empty) to its tenant.
// Negative results are not cached; a missing tenant stays a database lookup.
func (r *Resolver) Resolve(ctx context.Context, slug string) (store.Tenant, bool, error) {
	if slug == "" {
		slug = r.DefaultSlug
	}

	r.mu.RLock()
	c, hit := r.cache[slug]
	r.mu.RUnlock()
	if hit && time.Now().Before(c.until) {
		return c.tenant, true, nil
	}

	t, found, err := r.Lookup.TenantBySlug(ctx, slug)
	if err != nil || !found {
		return store.Tenant{}, found, err
	}

	r.mu.Lock()
	r.cache[slug] = cached{tenant: t, until: time.Now().Add(cacheTTL)}
	r.mu.Unlock()
	return t, true, nil
}
