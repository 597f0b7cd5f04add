package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	subdomain "github.com/smallbiznis/entitle/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() subdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subdomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (
			id, tenant_id, plan_id, status, trial_start, trial_end,
			canceled_at, suspended_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.TenantID,
		subscription.PlanID,
		subscription.Status,
		subscription.TrialStart,
		subscription.TrialEnd,
		subscription.CanceledAt,
		subscription.SuspendedAt,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, subscription *subdomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan_id = ?, status = ?, trial_start = ?, trial_end = ?,
		     canceled_at = ?, suspended_at = ?, updated_at = ?
		 WHERE id = ? AND tenant_id = ?`,
		subscription.PlanID,
		subscription.Status,
		subscription.TrialStart,
		subscription.TrialEnd,
		subscription.CanceledAt,
		subscription.SuspendedAt,
		subscription.UpdatedAt,
		subscription.ID,
		subscription.TenantID,
	).Error
}

func (r *repo) FindByTenantID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subdomain.Subscription, error) {
	var subscription subdomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, plan_id, status, trial_start, trial_end,
		 canceled_at, suspended_at, created_at, updated_at
		 FROM subscriptions WHERE tenant_id = ?`,
		tenantID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindLiveByTenantID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*subdomain.Subscription, error) {
	statuses := subdomain.LiveStatuses()
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	args = append(args, tenantID)
	for i, status := range statuses {
		placeholders[i] = "?"
		args = append(args, status)
	}

	var subscription subdomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, plan_id, status, trial_start, trial_end,
		 canceled_at, suspended_at, created_at, updated_at
		 FROM subscriptions
		 WHERE tenant_id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`,
		args...,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) InsertOverride(ctx context.Context, db *gorm.DB, override *subdomain.SubscriptionOverride) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_overrides (
			id, subscription_id, entitlement_type, entitlement_key, entitlement_value,
			created_by, reason, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		override.ID,
		override.SubscriptionID,
		override.Type,
		override.Key,
		override.Value,
		override.CreatedBy,
		override.Reason,
		override.ExpiresAt,
		override.CreatedAt,
		override.UpdatedAt,
	).Error
}

func (r *repo) UpdateOverride(ctx context.Context, db *gorm.DB, override *subdomain.SubscriptionOverride) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscription_overrides
		 SET entitlement_type = ?, entitlement_value = ?, created_by = ?,
		     reason = ?, expires_at = ?, updated_at = ?
		 WHERE id = ?`,
		override.Type,
		override.Value,
		override.CreatedBy,
		override.Reason,
		override.ExpiresAt,
		override.UpdatedAt,
		override.ID,
	).Error
}

func (r *repo) FindOverride(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, key string) (*subdomain.SubscriptionOverride, error) {
	var override subdomain.SubscriptionOverride
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, entitlement_type, entitlement_key, entitlement_value,
		 created_by, reason, expires_at, created_at, updated_at
		 FROM subscription_overrides
		 WHERE subscription_id = ? AND entitlement_key = ?`,
		subscriptionID,
		key,
	).Scan(&override).Error
	if err != nil {
		return nil, err
	}
	if override.ID == 0 {
		return nil, nil
	}
	return &override, nil
}

func (r *repo) ListOverrides(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]subdomain.SubscriptionOverride, error) {
	var overrides []subdomain.SubscriptionOverride
	err := db.WithContext(ctx).Raw(
		`SELECT id, subscription_id, entitlement_type, entitlement_key, entitlement_value,
		 created_by, reason, expires_at, created_at, updated_at
		 FROM subscription_overrides
		 WHERE subscription_id = ?
		 ORDER BY entitlement_key ASC`,
		subscriptionID,
	).Scan(&overrides).Error
	if err != nil {
		return nil, err
	}
	return overrides, nil
}
