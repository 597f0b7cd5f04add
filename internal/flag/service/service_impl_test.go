package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/entitle/internal/audit/domain"
	auditrepository "github.com/smallbiznis/entitle/internal/audit/repository"
	auditservice "github.com/smallbiznis/entitle/internal/audit/service"
	"github.com/smallbiznis/entitle/internal/cache"
	"github.com/smallbiznis/entitle/internal/clock"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	flagdomain "github.com/smallbiznis/entitle/internal/flag/domain"
	flagrepository "github.com/smallbiznis/entitle/internal/flag/repository"
	"github.com/smallbiznis/entitle/internal/tenantctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var flagDBSeq int64

type flagFixture struct {
	db       *gorm.DB
	node     *snowflake.Node
	clock    *clock.FakeClock
	service  flagdomain.Service
	tenantID snowflake.ID
	ctx      context.Context
}

func setupFlags(t *testing.T) *flagFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:flags%d?mode=memory&cache=shared", atomic.AddInt64(&flagDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&flagdomain.FeatureFlag{}, &auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	audit := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  flagrepository.Provide(),
		Audit: audit,
		Cache: cache.NewResolverCache(0),
	})

	tenantID := node.Generate()
	return &flagFixture{
		db:       db,
		node:     node,
		clock:    fake,
		service:  svc,
		tenantID: tenantID,
		ctx:      tenantctx.WithTenantID(context.Background(), tenantID),
	}
}

func (f *flagFixture) auditRows(t *testing.T) []auditdomain.AuditLog {
	t.Helper()
	var rows []auditdomain.AuditLog
	require.NoError(t, f.db.Where("tenant_id = ?", f.tenantID).Order("id").Find(&rows).Error)
	return rows
}

func TestSetFlagWritesRowAndAudit(t *testing.T) {
	f := setupFlags(t)

	resp, err := f.service.SetFlag(f.ctx, flagdomain.SetFlagRequest{
		Key:       entdomain.FeatureCalendar,
		Enabled:   false,
		ChangedBy: "42",
	})
	require.NoError(t, err)
	assert.Equal(t, entdomain.FeatureCalendar, resp.Key)
	assert.False(t, resp.Enabled)
	assert.Equal(t, "42", resp.LastChangedBy)

	rows := f.auditRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, auditdomain.ChangeTypeFlag, rows[0].ChangeType)
	assert.Equal(t, "feature_flag", rows[0].EntityType)
	assert.Equal(t, entdomain.FeatureCalendar, rows[0].EntityKey)
	assert.Nil(t, rows[0].OldValue)
	assert.JSONEq(t, `{"enabled":false}`, string(rows[0].NewValue))
}

func TestSetFlagTwiceUpdatesSameRow(t *testing.T) {
	f := setupFlags(t)

	_, err := f.service.SetFlag(f.ctx, flagdomain.SetFlagRequest{
		Key: entdomain.FeatureCalendar, Enabled: true, ChangedBy: "42",
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.service.SetFlag(f.ctx, flagdomain.SetFlagRequest{
		Key: entdomain.FeatureCalendar, Enabled: false, ChangedBy: "43",
	})
	require.NoError(t, err)

	flags, err := f.service.GetFlags(f.ctx)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.False(t, flags[0].Enabled)
	assert.Equal(t, "43", flags[0].LastChangedBy)

	rows := f.auditRows(t)
	require.Len(t, rows, 2)
	assert.JSONEq(t, `{"enabled":true}`, string(rows[1].OldValue))
	assert.JSONEq(t, `{"enabled":false}`, string(rows[1].NewValue))
}

func TestSetFlagRejectsUnknownKey(t *testing.T) {
	f := setupFlags(t)

	_, err := f.service.SetFlag(f.ctx, flagdomain.SetFlagRequest{
		Key: "calender_enabled", Enabled: true, ChangedBy: "42",
	})
	assert.ErrorIs(t, err, flagdomain.ErrUnknownKey)
	assert.Empty(t, f.auditRows(t))
}

func TestSetFlagRequiresActorAndTenant(t *testing.T) {
	f := setupFlags(t)

	_, err := f.service.SetFlag(f.ctx, flagdomain.SetFlagRequest{
		Key: entdomain.FeatureCalendar, Enabled: true,
	})
	assert.ErrorIs(t, err, flagdomain.ErrInvalidActor)

	_, err = f.service.SetFlag(context.Background(), flagdomain.SetFlagRequest{
		Key: entdomain.FeatureCalendar, Enabled: true, ChangedBy: "42",
	})
	assert.ErrorIs(t, err, flagdomain.ErrInvalidTenant)
}

func TestBulkSetFlagsRejectsWholeBatchOnUnknownKey(t *testing.T) {
	f := setupFlags(t)

	_, err := f.service.BulkSetFlags(f.ctx, flagdomain.BulkSetFlagsRequest{
		Flags: map[string]bool{
			entdomain.FeatureCalendar: true,
			"bogus_key":               true,
		},
		ChangedBy: "42",
	})
	assert.ErrorIs(t, err, flagdomain.ErrUnknownKey)

	flags, err := f.service.GetFlags(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, flags)
	assert.Empty(t, f.auditRows(t))
}

func TestBulkSetFlagsWritesAllFlagsAndAudits(t *testing.T) {
	f := setupFlags(t)

	out, err := f.service.BulkSetFlags(f.ctx, flagdomain.BulkSetFlagsRequest{
		Flags: map[string]bool{
			entdomain.FeatureCalendar: false,
			entdomain.FeatureInbox:    true,
			entdomain.FeatureSearch:   false,
		},
		ChangedBy: "42",
	})
	require.NoError(t, err)
	assert.Len(t, out, 3)

	flags, err := f.service.GetFlags(f.ctx)
	require.NoError(t, err)
	assert.Len(t, flags, 3)
	assert.Len(t, f.auditRows(t), 3)
}

func TestResetToDefaultsDeletesFlagsAndAuditsEach(t *testing.T) {
	f := setupFlags(t)

	_, err := f.service.BulkSetFlags(f.ctx, flagdomain.BulkSetFlagsRequest{
		Flags: map[string]bool{
			entdomain.FeatureCalendar: false,
			entdomain.FeatureMetrics:  true,
		},
		ChangedBy: "42",
	})
	require.NoError(t, err)

	reason := "support escalation"
	require.NoError(t, f.service.ResetToDefaults(f.ctx, flagdomain.ResetFlagsRequest{
		ChangedBy: "99",
		Reason:    &reason,
	}))

	flags, err := f.service.GetFlags(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, flags)

	rows := f.auditRows(t)
	require.Len(t, rows, 4)
	for _, row := range rows[2:] {
		assert.Equal(t, "99", row.ChangedBy)
		assert.Equal(t, "null", string(row.NewValue))
		require.NotNil(t, row.Reason)
		assert.Equal(t, reason, *row.Reason)
	}
}

func TestIsEnabledFallsBackToDefault(t *testing.T) {
	f := setupFlags(t)

	enabled, err := f.service.IsEnabled(f.ctx, entdomain.FeatureCalendar, true)
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = f.service.IsEnabled(f.ctx, entdomain.FeatureCalendar, false)
	require.NoError(t, err)
	assert.False(t, enabled)

	_, err = f.service.SetFlag(f.ctx, flagdomain.SetFlagRequest{
		Key: entdomain.FeatureCalendar, Enabled: false, ChangedBy: "42",
	})
	require.NoError(t, err)

	// An explicit row beats whatever default the caller supplies.
	enabled, err = f.service.IsEnabled(f.ctx, entdomain.FeatureCalendar, true)
	require.NoError(t, err)
	assert.False(t, enabled)

	_, err = f.service.IsEnabled(context.Background(), entdomain.FeatureCalendar, true)
	assert.ErrorIs(t, err, flagdomain.ErrInvalidTenant)
}

func TestResetToDefaultsAuditsEveryDeletedRow(t *testing.T) {
	f := setupFlags(t)

	_, err := f.service.SetFlag(f.ctx, flagdomain.SetFlagRequest{
		Key: entdomain.FeatureCalendar, Enabled: false, ChangedBy: "42",
	})
	require.NoError(t, err)

	// A row written outside the service, after any state the service may
	// have observed, must still be audited when reset deletes it.
	now := f.clock.Now()
	require.NoError(t, flagrepository.Provide().Insert(f.ctx, f.db, &flagdomain.FeatureFlag{
		ID:            f.node.Generate(),
		TenantID:      f.tenantID,
		Key:           entdomain.FeatureWebhooks,
		Enabled:       true,
		LastChangedBy: "42",
		LastChangedAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}))

	require.NoError(t, f.service.ResetToDefaults(f.ctx, flagdomain.ResetFlagsRequest{ChangedBy: "99"}))

	var remaining int64
	require.NoError(t, f.db.Model(&flagdomain.FeatureFlag{}).Where("tenant_id = ?", f.tenantID).Count(&remaining).Error)
	assert.Zero(t, remaining)

	deleted := map[string]bool{}
	for _, row := range f.auditRows(t) {
		if row.ChangedBy == "99" {
			deleted[row.EntityKey] = true
		}
	}
	assert.Equal(t, map[string]bool{
		entdomain.FeatureCalendar: true,
		entdomain.FeatureWebhooks: true,
	}, deleted)
}

func TestGetFlagNotFound(t *testing.T) {
	f := setupFlags(t)

	_, err := f.service.GetFlag(f.ctx, entdomain.FeatureCalendar)
	assert.ErrorIs(t, err, flagdomain.ErrFlagNotFound)
}
