package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	Update(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByTenantID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Subscription, error)
	FindLiveByTenantID(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (*Subscription, error)
	InsertOverride(ctx context.Context, db *gorm.DB, override *SubscriptionOverride) error
	UpdateOverride(ctx context.Context, db *gorm.DB, override *SubscriptionOverride) error
	FindOverride(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, key string) (*SubscriptionOverride, error)
	ListOverrides(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) ([]SubscriptionOverride, error)
}
