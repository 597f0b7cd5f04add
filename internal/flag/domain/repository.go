package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, flag *FeatureFlag) error
	Update(ctx context.Context, db *gorm.DB, flag *FeatureFlag) error
	Find(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*FeatureFlag, error)
	ListByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]FeatureFlag, error)
	DeleteByTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error
}
