package cache

import (
	"time"

	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
)

const defaultEntitlementTTL = 45 * time.Second

// ResolverCache stores resolved entitlement snapshots and flag maps per
// tenant. Any write that changes what a tenant resolves to must call
// InvalidateTenant so the next read goes back to the database.
type ResolverCache interface {
	GetEntitlements(tenantID string) (entdomain.ResolvedEntitlements, bool)
	SetEntitlements(tenantID string, resolved entdomain.ResolvedEntitlements)
	GetFlags(tenantID string) (map[string]bool, bool)
	SetFlags(tenantID string, flags map[string]bool)
	InvalidateTenant(tenantID string)
}

type resolverCache struct {
	entitlements Cache[string, entdomain.ResolvedEntitlements]
	flags        Cache[string, map[string]bool]
	ttl          time.Duration
}

// NewResolverCache returns an in-memory cache for the access decision hot
// path. A non-positive ttl disables caching entirely.
func NewResolverCache(ttl time.Duration) ResolverCache {
	if ttl <= 0 {
		ttl = 0
	}
	return &resolverCache{
		entitlements: NewTTLCache[string, entdomain.ResolvedEntitlements](),
		flags:        NewTTLCache[string, map[string]bool](),
		ttl:          ttl,
	}
}

// NewDefaultResolverCache returns a ResolverCache with the stock TTL.
func NewDefaultResolverCache() ResolverCache {
	return NewResolverCache(defaultEntitlementTTL)
}

func (c *resolverCache) GetEntitlements(tenantID string) (entdomain.ResolvedEntitlements, bool) {
	return c.entitlements.Get(tenantID)
}

func (c *resolverCache) SetEntitlements(tenantID string, resolved entdomain.ResolvedEntitlements) {
	c.entitlements.Set(tenantID, resolved, c.ttl)
}

func (c *resolverCache) GetFlags(tenantID string) (map[string]bool, bool) {
	return c.flags.Get(tenantID)
}

func (c *resolverCache) SetFlags(tenantID string, flags map[string]bool) {
	if flags == nil {
		return
	}
	c.flags.Set(tenantID, flags, c.ttl)
}

func (c *resolverCache) InvalidateTenant(tenantID string) {
	c.entitlements.Delete(tenantID)
	c.flags.Delete(tenantID)
}
