package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() plandomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, plan *plandomain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (
			id, code, name, description, monthly_price_cents, currency, active,
			legacy_entitlements, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.Code,
		plan.Name,
		plan.Description,
		plan.MonthlyPriceCents,
		plan.Currency,
		plan.Active,
		plan.LegacyEntitlements,
		plan.CreatedAt,
		plan.UpdatedAt,
	).Error
}

func (r *repo) InsertEntitlements(ctx context.Context, db *gorm.DB, entitlements []plandomain.PlanEntitlement) error {
	if len(entitlements) == 0 {
		return nil
	}
	for _, item := range entitlements {
		if err := db.WithContext(ctx).Exec(
			`INSERT INTO plan_entitlements (
				id, plan_id, entitlement_type, entitlement_key, entitlement_value, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.PlanID,
			item.Type,
			item.Key,
			item.Value,
			item.CreatedAt,
			item.UpdatedAt,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, monthly_price_cents, currency, active,
		 legacy_entitlements, created_at, updated_at
		 FROM plans WHERE id = ?`,
		id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*plandomain.Plan, error) {
	var plan plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, monthly_price_cents, currency, active,
		 legacy_entitlements, created_at, updated_at
		 FROM plans WHERE code = ?`,
		strings.TrimSpace(code),
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, code, name, description, monthly_price_cents, currency, active,
		 legacy_entitlements, created_at, updated_at
		 FROM plans ORDER BY monthly_price_cents ASC, code ASC`,
	).Scan(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) ListEntitlements(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]plandomain.PlanEntitlement, error) {
	var items []plandomain.PlanEntitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id, plan_id, entitlement_type, entitlement_key, entitlement_value, created_at, updated_at
		 FROM plan_entitlements WHERE plan_id = ? ORDER BY entitlement_key ASC`,
		planID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *plandomain.PlanEntitlement) error {
	if entitlement == nil {
		return gorm.ErrInvalidData
	}
	var existing plandomain.PlanEntitlement
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM plan_entitlements WHERE plan_id = ? AND entitlement_key = ? LIMIT 1`,
		entitlement.PlanID,
		entitlement.Key,
	).Scan(&existing).Error
	if err != nil {
		return err
	}
	if existing.ID != 0 {
		return db.WithContext(ctx).Exec(
			`UPDATE plan_entitlements
			 SET entitlement_type = ?, entitlement_value = ?, updated_at = ?
			 WHERE id = ?`,
			entitlement.Type,
			entitlement.Value,
			entitlement.UpdatedAt,
			existing.ID,
		).Error
	}
	return r.InsertEntitlements(ctx, db, []plandomain.PlanEntitlement{*entitlement})
}
