package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditcontext "github.com/smallbiznis/entitle/internal/auditcontext"
	auditdomain "github.com/smallbiznis/entitle/internal/audit/domain"
	auditrepository "github.com/smallbiznis/entitle/internal/audit/repository"
	"github.com/smallbiznis/entitle/internal/clock"
	"github.com/smallbiznis/entitle/internal/tenantctx"
	"github.com/smallbiznis/entitle/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var auditDBSeq int64

type auditFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	service  auditdomain.Service
	tenantID snowflake.ID
	ctx      context.Context
}

func setupAudit(t *testing.T) *auditFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:audit%d?mode=memory&cache=shared", atomic.AddInt64(&auditDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})

	tenantID := node.Generate()
	return &auditFixture{
		db:       db,
		node:     node,
		clock:    fake,
		service:  svc,
		tenantID: tenantID,
		ctx:      tenantctx.WithTenantID(context.Background(), tenantID),
	}
}

func (f *auditFixture) record(t *testing.T, changeType auditdomain.ChangeType, key string) {
	t.Helper()
	require.NoError(t, f.service.Record(f.ctx, nil, auditdomain.Entry{
		TenantID:   f.tenantID,
		ChangeType: changeType,
		EntityType: "feature_flag",
		EntityKey:  key,
		NewValue:   []byte(`{"enabled":true}`),
		ChangedBy:  "42",
	}))
}

func TestRecordValidation(t *testing.T) {
	f := setupAudit(t)

	err := f.service.Record(f.ctx, nil, auditdomain.Entry{
		ChangeType: auditdomain.ChangeTypeFlag,
		EntityKey:  "k",
		ChangedBy:  "42",
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTenant)

	err = f.service.Record(f.ctx, nil, auditdomain.Entry{
		TenantID:   f.tenantID,
		ChangeType: auditdomain.ChangeType("rename"),
		EntityKey:  "k",
		ChangedBy:  "42",
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidChangeType)

	err = f.service.Record(f.ctx, nil, auditdomain.Entry{
		TenantID:   f.tenantID,
		ChangeType: auditdomain.ChangeTypeFlag,
		EntityKey:  "  ",
		ChangedBy:  "42",
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidEntityKey)
}

func TestRecordCapturesRequestMetadata(t *testing.T) {
	f := setupAudit(t)

	ctx := auditcontext.WithIPAddress(f.ctx, "203.0.113.9")
	ctx = auditcontext.WithUserAgent(ctx, "curl/8.0")
	require.NoError(t, f.service.Record(ctx, nil, auditdomain.Entry{
		TenantID:   f.tenantID,
		ChangeType: auditdomain.ChangeTypeOverride,
		EntityKey:  "sellers",
		ChangedBy:  "42",
	}))

	var row auditdomain.AuditLog
	require.NoError(t, f.db.First(&row).Error)
	require.NotNil(t, row.IPAddress)
	assert.Equal(t, "203.0.113.9", *row.IPAddress)
	require.NotNil(t, row.UserAgent)
	assert.Equal(t, "curl/8.0", *row.UserAgent)
	// EntityType falls back to the change type when the caller omits it.
	assert.Equal(t, string(auditdomain.ChangeTypeOverride), row.EntityType)
}

func TestListNewestFirstWithCursor(t *testing.T) {
	f := setupAudit(t)

	for i := 0; i < 5; i++ {
		f.record(t, auditdomain.ChangeTypeFlag, fmt.Sprintf("key_%d", i))
		f.clock.Advance(time.Second)
	}

	first, err := f.service.List(f.ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.Equal(t, "key_4", first.AuditLogs[0].EntityKey)
	assert.Equal(t, "key_3", first.AuditLogs[1].EntityKey)
	assert.True(t, first.HasMore)
	require.NotEmpty(t, first.NextPageToken)

	second, err := f.service.List(f.ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 2)
	assert.Equal(t, "key_2", second.AuditLogs[0].EntityKey)
	assert.Equal(t, "key_1", second.AuditLogs[1].EntityKey)
}

func TestListFilters(t *testing.T) {
	f := setupAudit(t)

	f.record(t, auditdomain.ChangeTypeFlag, "calendar_enabled")
	f.clock.Advance(time.Second)
	f.record(t, auditdomain.ChangeTypeOverride, "sellers")

	byType, err := f.service.List(f.ctx, auditdomain.ListAuditLogRequest{
		ChangeType: string(auditdomain.ChangeTypeOverride),
	})
	require.NoError(t, err)
	require.Len(t, byType.AuditLogs, 1)
	assert.Equal(t, "sellers", byType.AuditLogs[0].EntityKey)

	cutoff := f.clock.Now().Add(-500 * time.Millisecond)
	recent, err := f.service.List(f.ctx, auditdomain.ListAuditLogRequest{
		StartAt: &cutoff,
	})
	require.NoError(t, err)
	require.Len(t, recent.AuditLogs, 1)
	assert.Equal(t, "sellers", recent.AuditLogs[0].EntityKey)
}

func TestListRejectsBadInput(t *testing.T) {
	f := setupAudit(t)

	_, err := f.service.List(context.Background(), auditdomain.ListAuditLogRequest{})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTenant)

	_, err = f.service.List(f.ctx, auditdomain.ListAuditLogRequest{
		Pagination: pagination.Pagination{PageToken: "not-a-token"},
	})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidPageToken)

	start := f.clock.Now()
	end := start.Add(-time.Hour)
	_, err = f.service.List(f.ctx, auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
