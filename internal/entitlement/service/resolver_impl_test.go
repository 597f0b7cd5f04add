package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/entitle/internal/cache"
	"github.com/smallbiznis/entitle/internal/clock"
	"github.com/smallbiznis/entitle/internal/config"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
	planrepository "github.com/smallbiznis/entitle/internal/plan/repository"
	subdomain "github.com/smallbiznis/entitle/internal/subscription/domain"
	subrepository "github.com/smallbiznis/entitle/internal/subscription/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type resolverFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	resolver entdomain.Resolver
	planRepo plandomain.Repository
	subRepo  subdomain.Repository
}

var resolverDBSeq int64

func setupResolver(t *testing.T, cfg config.Config) *resolverFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:resolver%d?mode=memory&cache=shared", atomic.AddInt64(&resolverDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&plandomain.Plan{},
		&plandomain.PlanEntitlement{},
		&subdomain.Subscription{},
		&subdomain.SubscriptionOverride{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	planRepo := planrepository.Provide()
	subRepo := subrepository.Provide()

	resolver := NewResolver(Params{
		DB:       db,
		Log:      zap.NewNop(),
		Cfg:      cfg,
		Clock:    fake,
		SubRepo:  subRepo,
		PlanRepo: planRepo,
		Cache:    cache.NewResolverCache(0),
	})

	return &resolverFixture{
		db:       db,
		node:     node,
		clock:    fake,
		resolver: resolver,
		planRepo: planRepo,
		subRepo:  subRepo,
	}
}

func (f *resolverFixture) createPlan(t *testing.T, features map[string]bool, limits map[string]int, normalized bool) *plandomain.Plan {
	t.Helper()
	ctx := context.Background()
	now := f.clock.Now()

	plan := &plandomain.Plan{
		ID:                 f.node.Generate(),
		Code:               "professional",
		Name:               "Professional",
		Currency:           "USD",
		Active:             true,
		LegacyEntitlements: datatypes.JSONMap{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var rows []plandomain.PlanEntitlement
	for key, included := range features {
		value := entdomain.EncodeFeatureValue(included)
		plan.LegacyEntitlements[key] = map[string]any{"included": included}
		rows = append(rows, plandomain.PlanEntitlement{
			ID:        f.node.Generate(),
			PlanID:    plan.ID,
			Type:      plandomain.EntitlementTypeFeature,
			Key:       key,
			Value:     datatypes.JSON(value),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	for key, max := range limits {
		value := entdomain.EncodeLimitValue(max)
		plan.LegacyEntitlements[key] = map[string]any{"max": max}
		rows = append(rows, plandomain.PlanEntitlement{
			ID:        f.node.Generate(),
			PlanID:    plan.ID,
			Type:      plandomain.EntitlementTypeLimit,
			Key:       key,
			Value:     datatypes.JSON(value),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	require.NoError(t, f.planRepo.Insert(ctx, f.db, plan))
	if normalized {
		require.NoError(t, f.planRepo.InsertEntitlements(ctx, f.db, rows))
	}
	return plan
}

func (f *resolverFixture) createSubscription(t *testing.T, tenantID snowflake.ID, planID snowflake.ID, status subdomain.SubscriptionStatus) *subdomain.Subscription {
	t.Helper()
	now := f.clock.Now()
	subscription := &subdomain.Subscription{
		ID:        f.node.Generate(),
		TenantID:  tenantID,
		PlanID:    planID,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.subRepo.Insert(context.Background(), f.db, subscription))
	return subscription
}

func (f *resolverFixture) addOverride(t *testing.T, subscriptionID snowflake.ID, key string, value []byte, entType plandomain.EntitlementType, expiresAt *time.Time) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.subRepo.InsertOverride(context.Background(), f.db, &subdomain.SubscriptionOverride{
		ID:             f.node.Generate(),
		SubscriptionID: subscriptionID,
		Type:           entType,
		Key:            key,
		Value:          datatypes.JSON(value),
		CreatedBy:      "42",
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}))
}

func TestResolveNoSubscriptionReturnsStarterDefaults(t *testing.T) {
	f := setupResolver(t, config.Config{PreferNormalizedEntitlements: true})
	tenantID := f.node.Generate()

	resolved, err := f.resolver.ResolveForTenant(context.Background(), tenantID, false)
	require.NoError(t, err)

	assert.Equal(t, entdomain.StarterDefaults(), resolved)
	assert.Empty(t, resolved.Source)
	assert.True(t, resolved.Features[entdomain.FeatureInbox])
	assert.False(t, resolved.Features[entdomain.FeatureSSO])
	assert.Equal(t, 50, resolved.Limits[entdomain.LimitLeadsPerMonth])
	assert.Equal(t, 500, resolved.Limits[entdomain.LimitMessagesPerMonth])
	assert.Equal(t, 2, resolved.Limits[entdomain.LimitSellers])
	assert.Equal(t, 10000, resolved.Limits[entdomain.LimitAITokensPerMonth])
}

func TestResolveCanceledSubscriptionFallsBackToDefaults(t *testing.T) {
	f := setupResolver(t, config.Config{PreferNormalizedEntitlements: true})
	plan := f.createPlan(t, map[string]bool{entdomain.FeatureMetrics: true}, nil, true)
	tenantID := f.node.Generate()
	f.createSubscription(t, tenantID, plan.ID, subdomain.SubscriptionStatusCanceled)

	resolved, err := f.resolver.ResolveForTenant(context.Background(), tenantID, false)
	require.NoError(t, err)
	assert.Equal(t, entdomain.StarterDefaults(), resolved)
}

func TestResolveOverrideWinsOverPlan(t *testing.T) {
	f := setupResolver(t, config.Config{PreferNormalizedEntitlements: true})
	plan := f.createPlan(t, map[string]bool{entdomain.FeatureAPIAccess: false}, nil, true)
	tenantID := f.node.Generate()
	subscription := f.createSubscription(t, tenantID, plan.ID, subdomain.SubscriptionStatusActive)

	expiry := f.clock.Now().Add(24 * time.Hour)
	f.addOverride(t, subscription.ID, entdomain.FeatureAPIAccess, entdomain.EncodeFeatureValue(true), plandomain.EntitlementTypeFeature, &expiry)

	resolved, err := f.resolver.ResolveForTenant(context.Background(), tenantID, false)
	require.NoError(t, err)
	assert.True(t, resolved.Features[entdomain.FeatureAPIAccess])
	assert.Equal(t, entdomain.SourceOverride, resolved.Source[entdomain.FeatureAPIAccess])
}

func TestResolveExpiredOverrideYieldsPlanValue(t *testing.T) {
	f := setupResolver(t, config.Config{PreferNormalizedEntitlements: true})
	plan := f.createPlan(t, map[string]bool{entdomain.FeatureAPIAccess: false}, nil, true)
	tenantID := f.node.Generate()
	subscription := f.createSubscription(t, tenantID, plan.ID, subdomain.SubscriptionStatusActive)

	expiry := f.clock.Now().Add(time.Hour)
	f.addOverride(t, subscription.ID, entdomain.FeatureAPIAccess, entdomain.EncodeFeatureValue(true), plandomain.EntitlementTypeFeature, &expiry)

	f.clock.Advance(2 * time.Hour)

	resolved, err := f.resolver.ResolveForTenant(context.Background(), tenantID, false)
	require.NoError(t, err)
	assert.False(t, resolved.Features[entdomain.FeatureAPIAccess])
	assert.Equal(t, entdomain.SourcePlan, resolved.Source[entdomain.FeatureAPIAccess])

	withExpired, err := f.resolver.ResolveForTenant(context.Background(), tenantID, true)
	require.NoError(t, err)
	assert.True(t, withExpired.Features[entdomain.FeatureAPIAccess])
	assert.Equal(t, entdomain.SourceOverride, withExpired.Source[entdomain.FeatureAPIAccess])
}

func TestResolveLimitOverride(t *testing.T) {
	f := setupResolver(t, config.Config{PreferNormalizedEntitlements: true})
	plan := f.createPlan(t, nil, map[string]int{entdomain.LimitSellers: 10}, true)
	tenantID := f.node.Generate()
	subscription := f.createSubscription(t, tenantID, plan.ID, subdomain.SubscriptionStatusActive)

	f.addOverride(t, subscription.ID, entdomain.LimitSellers, entdomain.EncodeLimitValue(25), plandomain.EntitlementTypeLimit, nil)

	limit, err := f.resolver.GetLimit(context.Background(), tenantID, entdomain.LimitSellers, 1)
	require.NoError(t, err)
	assert.Equal(t, 25, limit)

	missing, err := f.resolver.GetLimit(context.Background(), tenantID, "unknown_limit", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, missing)
}

func TestResolveMalformedValueDefaultsSafe(t *testing.T) {
	f := setupResolver(t, config.Config{PreferNormalizedEntitlements: true})
	plan := f.createPlan(t, nil, nil, false)
	tenantID := f.node.Generate()
	subscription := f.createSubscription(t, tenantID, plan.ID, subdomain.SubscriptionStatusActive)

	f.addOverride(t, subscription.ID, entdomain.FeatureMetrics, []byte(`{"wrong":"shape"}`), plandomain.EntitlementTypeFeature, nil)
	f.addOverride(t, subscription.ID, entdomain.LimitSellers, []byte(`not json`), plandomain.EntitlementTypeLimit, nil)

	resolved, err := f.resolver.ResolveForTenant(context.Background(), tenantID, false)
	require.NoError(t, err)
	assert.False(t, resolved.Features[entdomain.FeatureMetrics])
	assert.Equal(t, 0, resolved.Limits[entdomain.LimitSellers])
}

func TestResolveLegacyAndNormalizedYieldIdenticalSnapshots(t *testing.T) {
	features := map[string]bool{
		entdomain.FeatureInbox:     true,
		entdomain.FeatureAPIAccess: false,
	}
	limits := map[string]int{
		entdomain.LimitLeadsPerMonth: 500,
		entdomain.LimitSellers:       10,
	}

	normalized := setupResolver(t, config.Config{PreferNormalizedEntitlements: true})
	plan := normalized.createPlan(t, features, limits, true)
	tenantID := normalized.node.Generate()
	normalized.createSubscription(t, tenantID, plan.ID, subdomain.SubscriptionStatusActive)
	fromRows, err := normalized.resolver.ResolveForTenant(context.Background(), tenantID, false)
	require.NoError(t, err)

	legacy := setupResolver(t, config.Config{PreferNormalizedEntitlements: false})
	legacyPlan := legacy.createPlan(t, features, limits, false)
	legacyTenant := legacy.node.Generate()
	legacy.createSubscription(t, legacyTenant, legacyPlan.ID, subdomain.SubscriptionStatusActive)
	fromBlob, err := legacy.resolver.ResolveForTenant(context.Background(), legacyTenant, false)
	require.NoError(t, err)

	assert.Equal(t, fromRows.Features, fromBlob.Features)
	assert.Equal(t, fromRows.Limits, fromBlob.Limits)
	assert.Equal(t, fromRows.Source, fromBlob.Source)
}

func TestCanUseFeatureProjectsSnapshot(t *testing.T) {
	f := setupResolver(t, config.Config{PreferNormalizedEntitlements: true})
	plan := f.createPlan(t, map[string]bool{entdomain.FeatureCalendar: true}, nil, true)
	tenantID := f.node.Generate()
	f.createSubscription(t, tenantID, plan.ID, subdomain.SubscriptionStatusTrial)

	ok, err := f.resolver.CanUseFeature(context.Background(), tenantID, entdomain.FeatureCalendar)
	require.NoError(t, err)
	assert.True(t, ok)

	unknown, err := f.resolver.CanUseFeature(context.Background(), tenantID, "definitely_not_a_feature")
	require.NoError(t, err)
	assert.False(t, unknown)
}
