package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	flagdomain "github.com/smallbiznis/entitle/internal/flag/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() flagdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, flag *flagdomain.FeatureFlag) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO feature_flags (
			id, tenant_id, feature_key, enabled, last_changed_by, last_changed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		flag.ID,
		flag.TenantID,
		flag.Key,
		flag.Enabled,
		flag.LastChangedBy,
		flag.LastChangedAt,
		flag.CreatedAt,
		flag.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, flag *flagdomain.FeatureFlag) error {
	return db.WithContext(ctx).Exec(
		`UPDATE feature_flags
		 SET enabled = ?, last_changed_by = ?, last_changed_at = ?, updated_at = ?
		 WHERE id = ?`,
		flag.Enabled,
		flag.LastChangedBy,
		flag.LastChangedAt,
		flag.UpdatedAt,
		flag.ID,
	).Error
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*flagdomain.FeatureFlag, error) {
	var flag flagdomain.FeatureFlag
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, feature_key, enabled, last_changed_by, last_changed_at,
		 created_at, updated_at
		 FROM feature_flags WHERE tenant_id = ? AND feature_key = ?`,
		tenantID,
		key,
	).Scan(&flag).Error
	if err != nil {
		return nil, err
	}
	if flag.ID == 0 {
		return nil, nil
	}
	return &flag, nil
}

func (r *repo) ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]flagdomain.FeatureFlag, error) {
	var flags []flagdomain.FeatureFlag
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, feature_key, enabled, last_changed_by, last_changed_at,
		 created_at, updated_at
		 FROM feature_flags WHERE tenant_id = ? ORDER BY feature_key ASC`,
		tenantID,
	).Scan(&flags).Error
	if err != nil {
		return nil, err
	}
	return flags, nil
}

func (r *repo) DeleteByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM feature_flags WHERE tenant_id = ?`,
		tenantID,
	).Error
}
