// Package domain contains persistence models for tenant feature flags.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// FeatureFlag is a manager-set switch for one feature in one tenant. A flag
// row exists only after someone explicitly set it; features with no row
// resolve through the configured default policy.
type FeatureFlag struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	TenantID      snowflake.ID `gorm:"not null;uniqueIndex:ux_feature_flags_key,priority:1"`
	Key           string       `gorm:"column:feature_key;type:text;not null;uniqueIndex:ux_feature_flags_key,priority:2"`
	Enabled       bool         `gorm:"not null"`
	LastChangedBy string       `gorm:"type:text;not null"`
	LastChangedAt time.Time    `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (FeatureFlag) TableName() string { return "feature_flags" }
