// Package domain contains persistence models for tenant subscriptions and
// their entitlement overrides.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled  SubscriptionStatus = "canceled"
	SubscriptionStatusSuspended SubscriptionStatus = "suspended"
)

// LiveStatuses are the states in which a subscription still grants its
// plan's entitlements. Canceled and suspended tenants fall back to the
// starter defaults.
func LiveStatuses() []SubscriptionStatus {
	return []SubscriptionStatus{
		SubscriptionStatusTrial,
		SubscriptionStatusActive,
		SubscriptionStatusPastDue,
	}
}

// IsLive reports whether the status grants plan entitlements.
func (s SubscriptionStatus) IsLive() bool {
	switch s {
	case SubscriptionStatusTrial, SubscriptionStatusActive, SubscriptionStatusPastDue:
		return true
	}
	return false
}

// Subscription binds a tenant to a plan. A tenant has at most one
// subscription row; plan changes update the row in place and are audited.
type Subscription struct {
	ID          snowflake.ID       `gorm:"primaryKey"`
	TenantID    snowflake.ID       `gorm:"not null;uniqueIndex:ux_subscriptions_tenant"`
	PlanID      snowflake.ID       `gorm:"not null;index"`
	Status      SubscriptionStatus `gorm:"type:text;not null"`
	TrialStart  *time.Time         `gorm:""`
	TrialEnd    *time.Time         `gorm:""`
	CanceledAt  *time.Time         `gorm:""`
	SuspendedAt *time.Time         `gorm:""`
	CreatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// SubscriptionOverride grants or revokes a single entitlement on top of the
// plan baseline. Value carries {"included": bool} for features and
// {"max": int} for limits. An override with a past ExpiresAt no longer
// contributes to resolution but stays in the table for audit trails.
type SubscriptionOverride struct {
	ID             snowflake.ID               `gorm:"primaryKey"`
	SubscriptionID snowflake.ID               `gorm:"not null;uniqueIndex:ux_subscription_overrides_key,priority:1"`
	Type           plandomain.EntitlementType `gorm:"column:entitlement_type;type:text;not null"`
	Key            string                     `gorm:"column:entitlement_key;type:text;not null;uniqueIndex:ux_subscription_overrides_key,priority:2"`
	Value          datatypes.JSON             `gorm:"column:entitlement_value;not null"`
	CreatedBy      string                     `gorm:"type:text;not null"`
	Reason         *string                    `gorm:"type:text"`
	ExpiresAt      *time.Time                 `gorm:""`
	CreatedAt      time.Time                  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time                  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (SubscriptionOverride) TableName() string { return "subscription_overrides" }

// IsExpired reports whether the override is past its expiry at the given
// instant. Overrides without an expiry never expire.
func (o SubscriptionOverride) IsExpired(at time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(at)
}
