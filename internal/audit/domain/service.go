package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitle/pkg/db/pagination"
	"gorm.io/gorm"
)

// Entry describes one mutation to record. Old and New carry the JSON-encoded
// state before and after the change; nil means "did not exist".
type Entry struct {
	TenantID   snowflake.ID
	ChangeType ChangeType
	EntityType string
	EntityKey  string
	OldValue   []byte
	NewValue   []byte
	ChangedBy  string
	Reason     *string
}

type ListAuditLogRequest struct {
	pagination.Pagination
	ChangeType string
	EntityType string
	EntityKey  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Service appends and queries the audit trail. Record runs against the
// caller's transaction so a mutation and its audit row commit atomically;
// a failed audit write fails the whole mutation.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidTenant     = errors.New("invalid_tenant")
	ErrInvalidChangeType = errors.New("invalid_change_type")
	ErrInvalidEntityKey  = errors.New("invalid_entity_key")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
	ErrInvalidTimeRange  = errors.New("invalid_time_range")
)
