// Package domain contains persistence models for the plan catalog.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EntitlementType classifies a plan entitlement row.
type EntitlementType string

const (
	EntitlementTypeFeature EntitlementType = "feature"
	EntitlementTypeLimit   EntitlementType = "limit"
	EntitlementTypeAddon   EntitlementType = "addon"
)

// Plan is a priced tier. Entitlements live in two representations while the
// legacy blob is migrated out: LegacyEntitlements is the old {key: value}
// map, plan_entitlements rows are the normalized form. Both must resolve to
// the same snapshot.
type Plan struct {
	ID                 snowflake.ID      `gorm:"primaryKey"`
	Code               string            `gorm:"type:text;not null;uniqueIndex:ux_plans_code"`
	Name               string            `gorm:"type:text;not null"`
	Description        *string           `gorm:"type:text"`
	MonthlyPriceCents  int64             `gorm:"not null;default:0"`
	Currency           string            `gorm:"type:text;not null;default:'USD'"`
	Active             bool              `gorm:"not null;default:true"`
	LegacyEntitlements datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }

// PlanEntitlement is one normalized entitlement of a plan. Value is
// {"included": bool} for features and addons, {"max": int} for limits.
type PlanEntitlement struct {
	ID        snowflake.ID    `gorm:"primaryKey"`
	PlanID    snowflake.ID    `gorm:"not null;uniqueIndex:ux_plan_entitlements_key,priority:1"`
	Type      EntitlementType `gorm:"column:entitlement_type;type:text;not null"`
	Key       string          `gorm:"column:entitlement_key;type:text;not null;uniqueIndex:ux_plan_entitlements_key,priority:2"`
	Value     datatypes.JSON  `gorm:"column:entitlement_value;not null"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlanEntitlement) TableName() string { return "plan_entitlements" }
