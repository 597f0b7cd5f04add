package domain

import (
	"context"
	"errors"
	"time"
)

type SetFlagRequest struct {
	Key       string `json:"feature_key"`
	Enabled   bool   `json:"enabled"`
	ChangedBy string `json:"changed_by"`
	Reason    *string `json:"reason,omitempty"`
}

type BulkSetFlagsRequest struct {
	Flags     map[string]bool `json:"flags"`
	ChangedBy string          `json:"changed_by"`
	Reason    *string         `json:"reason,omitempty"`
}

type ResetFlagsRequest struct {
	ChangedBy string  `json:"changed_by"`
	Reason    *string `json:"reason,omitempty"`
}

type FlagResponse struct {
	Key           string    `json:"feature_key"`
	Enabled       bool      `json:"enabled"`
	LastChangedBy string    `json:"last_changed_by"`
	LastChangedAt time.Time `json:"last_changed_at"`
}

// Service manages per-tenant feature flags. Flags only record explicit
// choices; resolution of unset features happens in the access layer. Every
// mutation writes an audit row in the same transaction as the flag write,
// so a flag change without its audit trail cannot be observed.
type Service interface {
	GetFlags(ctx context.Context) ([]FlagResponse, error)
	// GetFlag returns the explicit flag row for key, or ErrFlagNotFound when
	// no manager has ever toggled it. Callers that want an unset flag to fall
	// back to a default use IsEnabled instead.
	GetFlag(ctx context.Context, key string) (*FlagResponse, error)
	// IsEnabled reports the flag state for key, returning def when the tenant
	// has no explicit row.
	IsEnabled(ctx context.Context, key string, def bool) (bool, error)
	SetFlag(ctx context.Context, req SetFlagRequest) (*FlagResponse, error)
	BulkSetFlags(ctx context.Context, req BulkSetFlagsRequest) ([]FlagResponse, error)
	ResetToDefaults(ctx context.Context, req ResetFlagsRequest) error
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidKey      = errors.New("invalid_feature_key")
	ErrUnknownKey      = errors.New("unknown_feature_key")
	ErrInvalidActor    = errors.New("invalid_actor")
	ErrEmptyBulkUpdate = errors.New("empty_bulk_update")
	ErrFlagNotFound    = errors.New("flag_not_found")
)
