// Package seed provisions the plan catalog on first startup so a fresh
// deployment resolves entitlements without any manual setup.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type catalogEntry struct {
	code              string
	name              string
	monthlyPriceCents int64
	features          map[string]bool
	limits            map[string]int
}

// catalog mirrors the starter defaults for the lowest tier so a tenant
// whose subscription lapses sees no entitlement change relative to a paid
// starter plan.
func catalog() []catalogEntry {
	return []catalogEntry{
		{
			code:              "starter",
			name:              "Starter",
			monthlyPriceCents: 0,
			features: map[string]bool{
				entdomain.FeatureInbox:       true,
				entdomain.FeatureLeads:       true,
				entdomain.FeatureNotes:       true,
				entdomain.FeatureAttachments: true,
				entdomain.FeatureCalendar:    true,
				entdomain.FeatureTemplates:   true,
				entdomain.FeatureSSE:         true,
				entdomain.FeatureSearch:      true,
			},
			limits: map[string]int{
				entdomain.LimitLeadsPerMonth:    50,
				entdomain.LimitMessagesPerMonth: 500,
				entdomain.LimitSellers:          2,
				entdomain.LimitAITokensPerMonth: 10000,
			},
		},
		{
			code:              "professional",
			name:              "Professional",
			monthlyPriceCents: 4900,
			features: map[string]bool{
				entdomain.FeatureInbox:       true,
				entdomain.FeatureLeads:       true,
				entdomain.FeatureNotes:       true,
				entdomain.FeatureAttachments: true,
				entdomain.FeatureCalendar:    true,
				entdomain.FeatureTemplates:   true,
				entdomain.FeatureSSE:         true,
				entdomain.FeatureSearch:      true,
				entdomain.FeatureMetrics:     true,
				entdomain.FeatureAIAssistant: true,
				entdomain.FeatureBulkExport:  true,
				entdomain.FeatureAPIAccess:   false,
			},
			limits: map[string]int{
				entdomain.LimitLeadsPerMonth:    500,
				entdomain.LimitMessagesPerMonth: 5000,
				entdomain.LimitSellers:          10,
				entdomain.LimitAITokensPerMonth: 100000,
			},
		},
		{
			code:              "enterprise",
			name:              "Enterprise",
			monthlyPriceCents: 19900,
			features: map[string]bool{
				entdomain.FeatureInbox:          true,
				entdomain.FeatureLeads:          true,
				entdomain.FeatureNotes:          true,
				entdomain.FeatureAttachments:    true,
				entdomain.FeatureCalendar:       true,
				entdomain.FeatureTemplates:      true,
				entdomain.FeatureSSE:            true,
				entdomain.FeatureSearch:         true,
				entdomain.FeatureMetrics:        true,
				entdomain.FeatureAIAssistant:    true,
				entdomain.FeatureBulkExport:     true,
				entdomain.FeatureAPIAccess:      true,
				entdomain.FeatureWebhooks:       true,
				entdomain.FeatureCustomBranding: true,
				entdomain.FeatureAuditExport:    true,
				entdomain.FeatureSSO:            true,
				entdomain.FeatureIPAllowlist:    true,
			},
			limits: map[string]int{
				entdomain.LimitLeadsPerMonth:    10000,
				entdomain.LimitMessagesPerMonth: 100000,
				entdomain.LimitSellers:          100,
				entdomain.LimitAITokensPerMonth: 2000000,
			},
		},
	}
}

// EnsureCatalogPlans inserts any missing catalog plan together with its
// normalized entitlement rows and the matching legacy blob. Existing plans
// are left untouched.
func EnsureCatalogPlans(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, entry := range catalog() {
			if err := ensurePlanTx(ctx, tx, node, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensurePlanTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, entry catalogEntry) error {
	var existing plandomain.Plan
	if err := tx.WithContext(ctx).Raw(
		`SELECT id FROM plans WHERE code = ?`, entry.code,
	).Scan(&existing).Error; err != nil {
		return err
	}
	if existing.ID != 0 {
		return nil
	}

	now := time.Now().UTC()
	plan := plandomain.Plan{
		ID:                 node.Generate(),
		Code:               entry.code,
		Name:               entry.name,
		MonthlyPriceCents:  entry.monthlyPriceCents,
		Currency:           "USD",
		Active:             true,
		LegacyEntitlements: datatypes.JSONMap{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	entitlements := make([]plandomain.PlanEntitlement, 0, len(entry.features)+len(entry.limits))
	for key, included := range entry.features {
		value := entdomain.EncodeFeatureValue(included)
		plan.LegacyEntitlements[key] = json.RawMessage(value)
		entitlements = append(entitlements, plandomain.PlanEntitlement{
			ID:        node.Generate(),
			PlanID:    plan.ID,
			Type:      plandomain.EntitlementTypeFeature,
			Key:       key,
			Value:     datatypes.JSON(value),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	for key, max := range entry.limits {
		value := entdomain.EncodeLimitValue(max)
		plan.LegacyEntitlements[key] = json.RawMessage(value)
		entitlements = append(entitlements, plandomain.PlanEntitlement{
			ID:        node.Generate(),
			PlanID:    plan.ID,
			Type:      plandomain.EntitlementTypeLimit,
			Key:       key,
			Value:     datatypes.JSON(value),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := tx.WithContext(ctx).Create(&plan).Error; err != nil {
		return err
	}
	if len(entitlements) > 0 {
		if err := tx.WithContext(ctx).Create(&entitlements).Error; err != nil {
			return err
		}
	}
	return nil
}
