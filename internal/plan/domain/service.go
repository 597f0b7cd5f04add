package domain

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type CreatePlanEntitlementRequest struct {
	Type  EntitlementType `json:"entitlement_type"`
	Key   string          `json:"entitlement_key"`
	Value json.RawMessage `json:"entitlement_value"`
}

type CreatePlanRequest struct {
	Code              string                         `json:"code"`
	Name              string                         `json:"name"`
	Description       *string                        `json:"description,omitempty"`
	MonthlyPriceCents int64                          `json:"monthly_price_cents"`
	Currency          string                         `json:"currency"`
	Entitlements      []CreatePlanEntitlementRequest `json:"entitlements"`
}

type EntitlementResponse struct {
	Type  EntitlementType `json:"entitlement_type"`
	Key   string          `json:"entitlement_key"`
	Value json.RawMessage `json:"entitlement_value"`
}

type Response struct {
	ID                string                `json:"id"`
	Code              string                `json:"code"`
	Name              string                `json:"name"`
	Description       *string               `json:"description,omitempty"`
	MonthlyPriceCents int64                 `json:"monthly_price_cents"`
	Currency          string                `json:"currency"`
	Active            bool                  `json:"active"`
	Entitlements      []EntitlementResponse `json:"entitlements,omitempty"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// Service manages the plan catalog. Plans are authored at design time and
// rarely change afterwards.
type Service interface {
	Create(ctx context.Context, req CreatePlanRequest) (*Response, error)
	List(ctx context.Context) ([]Response, error)
	GetByCode(ctx context.Context, code string) (*Response, error)
}

var (
	ErrInvalidCode        = errors.New("invalid_code")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidType        = errors.New("invalid_entitlement_type")
	ErrInvalidKey         = errors.New("invalid_entitlement_key")
	ErrInvalidValue       = errors.New("invalid_entitlement_value")
	ErrDuplicateCode      = errors.New("duplicate_code")
	ErrPlanNotFound       = errors.New("plan_not_found")
	ErrDuplicateKeyInPlan = errors.New("duplicate_entitlement_key")
)
