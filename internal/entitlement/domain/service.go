package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Resolver merges a tenant's plan baseline with its subscription overrides
// into one snapshot. Resolution is deterministic and side-effect free for a
// given database state; it never fails on missing or malformed entitlement
// data, only on storage errors.
type Resolver interface {
	// ResolveForTenant builds the merged snapshot. Expired overrides are
	// skipped unless includeExpired is set.
	ResolveForTenant(ctx context.Context, tenantID snowflake.ID, includeExpired bool) (ResolvedEntitlements, error)

	// CanUseFeature reports whether the tenant's resolved snapshot includes
	// the feature. Unknown keys resolve to false.
	CanUseFeature(ctx context.Context, tenantID snowflake.ID, key string) (bool, error)

	// GetLimit returns the resolved limit for key, or def when the snapshot
	// has no value for it.
	GetLimit(ctx context.Context, tenantID snowflake.ID, key string, def int) (int, error)
}
