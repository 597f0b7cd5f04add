package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitle/internal/cache"
	"github.com/smallbiznis/entitle/internal/clock"
	"github.com/smallbiznis/entitle/internal/config"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	"github.com/smallbiznis/entitle/internal/observability/metrics"
	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
	subdomain "github.com/smallbiznis/entitle/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cfg     config.Config
	Clock   clock.Clock
	SubRepo subdomain.Repository
	PlanRepo plandomain.Repository
	Cache   cache.ResolverCache
	Metrics *metrics.Metrics `optional:"true"`
}

type Resolver struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.Config
	clock    clock.Clock
	subRepo  subdomain.Repository
	planRepo plandomain.Repository
	cache    cache.ResolverCache
	metrics  *metrics.Metrics
}

func NewResolver(p Params) entdomain.Resolver {
	return &Resolver{
		db:       p.DB,
		log:      p.Log.Named("entitlement.resolver"),
		cfg:      p.Cfg,
		clock:    p.Clock,
		subRepo:  p.SubRepo,
		planRepo: p.PlanRepo,
		cache:    p.Cache,
		metrics:  p.Metrics,
	}
}

func (r *Resolver) ResolveForTenant(ctx context.Context, tenantID snowflake.ID, includeExpired bool) (entdomain.ResolvedEntitlements, error) {
	// Only the common read path is cached; includeExpired is an admin
	// inspection mode and always hits the database.
	if !includeExpired {
		if snapshot, ok := r.cache.GetEntitlements(tenantID.String()); ok {
			r.recordCache(ctx, "hit")
			return snapshot, nil
		}
		r.recordCache(ctx, "miss")
	}

	snapshot, err := r.resolve(ctx, tenantID, includeExpired)
	if err != nil {
		return entdomain.ResolvedEntitlements{}, err
	}

	if !includeExpired {
		r.cache.SetEntitlements(tenantID.String(), snapshot)
	}
	return snapshot, nil
}

func (r *Resolver) CanUseFeature(ctx context.Context, tenantID snowflake.ID, key string) (bool, error) {
	snapshot, err := r.ResolveForTenant(ctx, tenantID, false)
	if err != nil {
		return false, err
	}
	return snapshot.Features[strings.TrimSpace(key)], nil
}

func (r *Resolver) GetLimit(ctx context.Context, tenantID snowflake.ID, key string, def int) (int, error) {
	snapshot, err := r.ResolveForTenant(ctx, tenantID, false)
	if err != nil {
		return def, err
	}
	if value, ok := snapshot.Limits[strings.TrimSpace(key)]; ok {
		return value, nil
	}
	return def, nil
}

func (r *Resolver) resolve(ctx context.Context, tenantID snowflake.ID, includeExpired bool) (entdomain.ResolvedEntitlements, error) {
	subscription, err := r.subRepo.FindLiveByTenantID(ctx, r.db, tenantID)
	if err != nil {
		return entdomain.ResolvedEntitlements{}, err
	}
	if subscription == nil {
		return entdomain.StarterDefaults(), nil
	}

	snapshot, err := r.planBaseline(ctx, tenantID, subscription.PlanID)
	if err != nil {
		return entdomain.ResolvedEntitlements{}, err
	}

	overrides, err := r.subRepo.ListOverrides(ctx, r.db, subscription.ID)
	if err != nil {
		return entdomain.ResolvedEntitlements{}, err
	}

	now := r.clock.Now()
	for _, override := range overrides {
		if !includeExpired && override.IsExpired(now) {
			continue
		}
		r.applyValue(snapshot, tenantID, override.Key, string(override.Type), []byte(override.Value), entdomain.SourceOverride)
	}
	return snapshot, nil
}

// planBaseline loads the plan's entitlements, preferring the normalized
// rows when configured and falling back to the legacy blob. Both paths
// must yield the same snapshot for a well-migrated plan.
func (r *Resolver) planBaseline(ctx context.Context, tenantID, planID snowflake.ID) (entdomain.ResolvedEntitlements, error) {
	snapshot := entdomain.NewResolvedEntitlements()

	if r.cfg.PreferNormalizedEntitlements {
		rows, err := r.planRepo.ListEntitlements(ctx, r.db, planID)
		if err != nil {
			return entdomain.ResolvedEntitlements{}, err
		}
		if len(rows) > 0 {
			for _, row := range rows {
				r.applyValue(snapshot, tenantID, row.Key, string(row.Type), []byte(row.Value), entdomain.SourcePlan)
			}
			return snapshot, nil
		}
	}

	plan, err := r.planRepo.FindByID(ctx, r.db, planID)
	if err != nil {
		return entdomain.ResolvedEntitlements{}, err
	}
	if plan == nil {
		r.log.Warn("subscription references missing plan",
			zap.String("tenant_id", tenantID.String()),
			zap.String("plan_id", planID.String()),
		)
		return entdomain.StarterDefaults(), nil
	}

	for key, raw := range plan.LegacyEntitlements {
		encoded, err := json.Marshal(raw)
		if err != nil {
			r.warnMalformed(tenantID, key)
			continue
		}
		r.applyValue(snapshot, tenantID, key, inferType(key), encoded, entdomain.SourcePlan)
	}
	return snapshot, nil
}

// applyValue decodes one entitlement blob into the snapshot. Malformed
// blobs degrade to the safe value (feature off, limit zero) and are logged
// rather than failing resolution.
func (r *Resolver) applyValue(snapshot entdomain.ResolvedEntitlements, tenantID snowflake.ID, key, entType string, raw []byte, source entdomain.ValueSource) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}

	switch entType {
	case string(plandomain.EntitlementTypeLimit):
		value, ok := entdomain.DecodeLimitValue(raw)
		if !ok {
			r.warnMalformed(tenantID, key)
		}
		snapshot.Limits[key] = value.Max
	default:
		value, ok := entdomain.DecodeFeatureValue(raw)
		if !ok {
			r.warnMalformed(tenantID, key)
		}
		snapshot.Features[key] = value.Included
	}
	snapshot.Source[key] = source
}

func (r *Resolver) warnMalformed(tenantID snowflake.ID, key string) {
	r.log.Warn("malformed entitlement value",
		zap.String("tenant_id", tenantID.String()),
		zap.String("entitlement_key", key),
	)
}

func (r *Resolver) recordCache(ctx context.Context, result string) {
	if r.metrics != nil {
		r.metrics.RecordResolverCache(ctx, result)
	}
}

// inferType classifies a legacy blob key; the legacy map does not carry an
// explicit type column.
func inferType(key string) string {
	for _, limit := range entdomain.KnownLimitKeys() {
		if key == limit {
			return string(plandomain.EntitlementTypeLimit)
		}
	}
	if strings.HasSuffix(key, "_per_month") || key == entdomain.LimitSellers {
		return string(plandomain.EntitlementTypeLimit)
	}
	return string(plandomain.EntitlementTypeFeature)
}
