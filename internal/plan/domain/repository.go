package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, plan *Plan) error
	InsertEntitlements(ctx context.Context, db *gorm.DB, entitlements []PlanEntitlement) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Plan, error)
	List(ctx context.Context, db *gorm.DB) ([]Plan, error)
	ListEntitlements(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]PlanEntitlement, error)
	UpsertEntitlement(ctx context.Context, db *gorm.DB, entitlement *PlanEntitlement) error
}
