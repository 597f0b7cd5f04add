package access

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitle/internal/cache"
	"github.com/smallbiznis/entitle/internal/config"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	flagdomain "github.com/smallbiznis/entitle/internal/flag/domain"
	"github.com/smallbiznis/entitle/internal/observability/metrics"
	"github.com/smallbiznis/entitle/internal/permission"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Cfg         config.Config
	Resolver    entdomain.Resolver
	FlagRepo    flagdomain.Repository
	Permissions *permission.Service
	Cache       cache.ResolverCache
	Metrics     *metrics.Metrics `optional:"true"`
}

// Engine composes the entitlement resolver, the flag store, and the role
// tables. Decisions never fail on missing data; every absent piece
// resolves to its documented default, and only storage errors propagate.
type Engine struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         config.Config
	resolver    entdomain.Resolver
	flagRepo    flagdomain.Repository
	permissions *permission.Service
	cache       cache.ResolverCache
	metrics     *metrics.Metrics
}

func NewEngine(p Params) *Engine {
	return &Engine{
		db:          p.DB,
		log:         p.Log.Named("access.engine"),
		cfg:         p.Cfg,
		resolver:    p.Resolver,
		flagRepo:    p.FlagRepo,
		permissions: p.Permissions,
		cache:       p.Cache,
		metrics:     p.Metrics,
	}
}

// CanAccessFeature computes the decision for one feature. The principal's
// tenant is trusted to match tenantID; cross-tenant checks are the edge's
// responsibility.
func (e *Engine) CanAccessFeature(ctx context.Context, tenantID snowflake.ID, principal permission.Principal, featureKey string) (AccessDecision, error) {
	if principal.Role == permission.RoleSuperadmin {
		decision := AccessDecision{
			Allowed:       true,
			Reason:        ReasonSuperadminBypass,
			Entitled:      true,
			FlagActive:    true,
			RolePermitted: true,
		}
		e.record(ctx, decision)
		return decision, nil
	}

	resolved, err := e.resolver.ResolveForTenant(ctx, tenantID, false)
	if err != nil {
		return AccessDecision{}, err
	}
	flags, err := e.tenantFlags(ctx, tenantID)
	if err != nil {
		return AccessDecision{}, err
	}

	decision := e.decide(principal, featureKey, resolved, flags)
	e.record(ctx, decision)
	return decision, nil
}

// ResolveAllFeatures builds the capability manifest: one decision per
// known feature key, reading entitlements and flags once.
func (e *Engine) ResolveAllFeatures(ctx context.Context, tenantID snowflake.ID, principal permission.Principal) (map[string]AccessDecision, error) {
	keys := entdomain.KnownFeatureKeys()
	decisions := make(map[string]AccessDecision, len(keys))

	if principal.Role == permission.RoleSuperadmin {
		for _, key := range keys {
			decisions[key] = AccessDecision{
				Allowed:       true,
				Reason:        ReasonSuperadminBypass,
				Entitled:      true,
				FlagActive:    true,
				RolePermitted: true,
			}
		}
		return decisions, nil
	}

	resolved, err := e.resolver.ResolveForTenant(ctx, tenantID, false)
	if err != nil {
		return nil, err
	}
	flags, err := e.tenantFlags(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		decisions[key] = e.decide(principal, key, resolved, flags)
	}
	return decisions, nil
}

// decide computes all three booleans and picks the reason from the first
// failing check in entitlement, flag, role order.
func (e *Engine) decide(principal permission.Principal, featureKey string, resolved entdomain.ResolvedEntitlements, flags map[string]bool) AccessDecision {
	entitled := resolved.Features[featureKey]

	flagActive := e.cfg.FlagDefaultOpen
	if explicit, set := flags[featureKey]; set {
		flagActive = explicit
	}

	rolePermitted := e.permissions.RoleAllowsFeature(principal, featureKey)

	decision := AccessDecision{
		Allowed:       entitled && flagActive && rolePermitted,
		Entitled:      entitled,
		FlagActive:    flagActive,
		RolePermitted: rolePermitted,
	}
	switch {
	case !entitled:
		decision.Reason = ReasonNotEntitledByPlan
	case !flagActive:
		decision.Reason = ReasonFlagDisabledByManager
	case !rolePermitted:
		decision.Reason = ReasonRoleInsufficient
	default:
		decision.Reason = ReasonAllowed
	}
	return decision
}

// tenantFlags loads the explicit flag map for the tenant, going through
// the resolver cache on the hot path.
func (e *Engine) tenantFlags(ctx context.Context, tenantID snowflake.ID) (map[string]bool, error) {
	if cached, ok := e.cache.GetFlags(tenantID.String()); ok {
		return cached, nil
	}

	rows, err := e.flagRepo.ListByTenant(ctx, e.db, tenantID)
	if err != nil {
		return nil, err
	}
	flags := make(map[string]bool, len(rows))
	for _, row := range rows {
		flags[row.Key] = row.Enabled
	}
	e.cache.SetFlags(tenantID.String(), flags)
	return flags, nil
}

func (e *Engine) record(ctx context.Context, decision AccessDecision) {
	if e.metrics != nil {
		e.metrics.RecordAccessDecision(ctx, decision.Reason, decision.Allowed)
	}
}

var Module = fx.Module("access.engine",
	fx.Provide(NewEngine),
)
