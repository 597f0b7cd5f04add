package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
)

type CreateSubscriptionRequest struct {
	PlanCode  string `json:"plan_code"`
	TrialDays *int   `json:"trial_days,omitempty"`
}

type ChangePlanRequest struct {
	NewPlanCode string `json:"new_plan_code"`
	ChangedBy   string `json:"changed_by"`
	Reason      *string `json:"reason,omitempty"`
}

type TransitionRequest struct {
	TargetStatus SubscriptionStatus `json:"target_status"`
	ChangedBy    string             `json:"changed_by"`
	Reason       *string            `json:"reason,omitempty"`
}

type UpsertOverrideRequest struct {
	Type      plandomain.EntitlementType `json:"entitlement_type"`
	Key       string                     `json:"entitlement_key"`
	Value     json.RawMessage            `json:"entitlement_value"`
	CreatedBy string                     `json:"created_by"`
	Reason    *string                    `json:"reason,omitempty"`
	ExpiresAt *time.Time                 `json:"expires_at,omitempty"`
}

type ExpireOverrideRequest struct {
	Key       string  `json:"entitlement_key"`
	ChangedBy string  `json:"changed_by"`
	Reason    *string `json:"reason,omitempty"`
}

type OverrideResponse struct {
	ID        string                     `json:"id"`
	Type      plandomain.EntitlementType `json:"entitlement_type"`
	Key       string                     `json:"entitlement_key"`
	Value     json.RawMessage            `json:"entitlement_value"`
	CreatedBy string                     `json:"created_by"`
	Reason    *string                    `json:"reason,omitempty"`
	ExpiresAt *time.Time                 `json:"expires_at,omitempty"`
	Expired   bool                       `json:"expired"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

type Response struct {
	ID         string             `json:"id"`
	TenantID   string             `json:"tenant_id"`
	PlanID     string             `json:"plan_id"`
	PlanCode   string             `json:"plan_code,omitempty"`
	Status     SubscriptionStatus `json:"status"`
	TrialStart *time.Time         `json:"trial_start,omitempty"`
	TrialEnd   *time.Time         `json:"trial_end,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// Service manages the subscription lifecycle and entitlement overrides.
// Tenant identity comes from the request context. Mutations that change
// what a tenant is entitled to write an audit row in the same transaction.
type Service interface {
	Create(ctx context.Context, req CreateSubscriptionRequest) (*Response, error)
	Get(ctx context.Context) (*Response, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*Response, error)
	Transition(ctx context.Context, req TransitionRequest) (*Response, error)
	UpsertOverride(ctx context.Context, req UpsertOverrideRequest) (*OverrideResponse, error)
	ExpireOverride(ctx context.Context, req ExpireOverrideRequest) (*OverrideResponse, error)
	ListOverrides(ctx context.Context, includeExpired bool) ([]OverrideResponse, error)
}

var (
	ErrInvalidTenant          = errors.New("invalid_tenant")
	ErrInvalidPlanCode        = errors.New("invalid_plan_code")
	ErrInvalidTrialDays       = errors.New("invalid_trial_days")
	ErrInvalidTargetStatus    = errors.New("invalid_target_status")
	ErrInvalidTransition      = errors.New("invalid_transition")
	ErrInvalidOverrideType    = errors.New("invalid_override_type")
	ErrInvalidOverrideKey     = errors.New("invalid_override_key")
	ErrInvalidOverrideValue   = errors.New("invalid_override_value")
	ErrInvalidActor           = errors.New("invalid_actor")
	ErrSubscriptionExists     = errors.New("subscription_exists")
	ErrSubscriptionNotFound   = errors.New("subscription_not_found")
	ErrOverrideNotFound       = errors.New("override_not_found")
)
