// Package domain contains the append-only audit trail for entitlement changes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ChangeType classifies what kind of entitlement state changed.
type ChangeType string

const (
	ChangeTypeOverride   ChangeType = "override"
	ChangeTypeFlag       ChangeType = "flag"
	ChangeTypePlanChange ChangeType = "plan_change"
)

// AuditLog is one immutable record of a flag, override, or plan mutation.
// Old and new values are null for creations and deletions respectively.
type AuditLog struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	TenantID   snowflake.ID   `gorm:"not null;index:idx_feature_audit_tenant_created,priority:1"`
	ChangeType ChangeType     `gorm:"type:text;not null"`
	EntityType string         `gorm:"type:text;not null"`
	EntityKey  string         `gorm:"type:text;not null;index"`
	OldValue   datatypes.JSON `gorm:""`
	NewValue   datatypes.JSON `gorm:""`
	ChangedBy  string         `gorm:"type:text;not null"`
	Reason     *string        `gorm:"type:text"`
	IPAddress  *string        `gorm:"type:text"`
	UserAgent  *string        `gorm:"type:text"`
	CreatedAt  time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_feature_audit_tenant_created,priority:2"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "feature_audit_logs" }

// AuditCursor marks a position in the descending (created_at, id) ordering.
type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// ListFilter narrows audit queries.
type ListFilter struct {
	TenantID   snowflake.ID
	ChangeType string
	EntityType string
	EntityKey  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
