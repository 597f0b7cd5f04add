package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/entitle/internal/audit/domain"
	"github.com/smallbiznis/entitle/internal/cache"
	"github.com/smallbiznis/entitle/internal/clock"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	flagdomain "github.com/smallbiznis/entitle/internal/flag/domain"
	"github.com/smallbiznis/entitle/internal/observability/metrics"
	"github.com/smallbiznis/entitle/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    flagdomain.Repository
	Audit   auditdomain.Service
	Cache   cache.ResolverCache
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    flagdomain.Repository
	audit   auditdomain.Service
	cache   cache.ResolverCache
	metrics *metrics.Metrics
}

func NewService(p Params) flagdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("flag.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		audit:   p.Audit,
		cache:   p.Cache,
		metrics: p.Metrics,
	}
}

func (s *Service) GetFlags(ctx context.Context) ([]flagdomain.FlagResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, flagdomain.ErrInvalidTenant
	}

	flags, err := s.repo.ListByTenant(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]flagdomain.FlagResponse, 0, len(flags))
	for _, flag := range flags {
		out = append(out, toResponse(flag))
	}
	return out, nil
}

func (s *Service) GetFlag(ctx context.Context, key string) (*flagdomain.FlagResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, flagdomain.ErrInvalidTenant
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, flagdomain.ErrInvalidKey
	}

	flag, err := s.repo.Find(ctx, s.db, tenantID, key)
	if err != nil {
		return nil, err
	}
	if flag == nil {
		return nil, flagdomain.ErrFlagNotFound
	}

	resp := toResponse(*flag)
	return &resp, nil
}

func (s *Service) IsEnabled(ctx context.Context, key string, def bool) (bool, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return def, flagdomain.ErrInvalidTenant
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return def, flagdomain.ErrInvalidKey
	}

	flag, err := s.repo.Find(ctx, s.db, tenantID, key)
	if err != nil {
		return def, err
	}
	if flag == nil {
		return def, nil
	}
	return flag.Enabled, nil
}

func (s *Service) SetFlag(ctx context.Context, req flagdomain.SetFlagRequest) (*flagdomain.FlagResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, flagdomain.ErrInvalidTenant
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		return nil, flagdomain.ErrInvalidActor
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return nil, flagdomain.ErrInvalidKey
	}
	if !entdomain.IsKnownFeatureKey(key) {
		return nil, flagdomain.ErrUnknownKey
	}

	var saved flagdomain.FeatureFlag
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.writeFlag(ctx, tx, tenantID, key, req.Enabled, changedBy, req.Reason)
		if err != nil {
			return err
		}
		saved = row
		return nil
	})
	if err != nil {
		s.log.Error("failed to set flag", zap.String("feature_key", key), zap.Error(err))
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordFlagMutation(ctx, "set")
	}
	s.cache.InvalidateTenant(tenantID.String())
	resp := toResponse(saved)
	return &resp, nil
}

func (s *Service) BulkSetFlags(ctx context.Context, req flagdomain.BulkSetFlagsRequest) ([]flagdomain.FlagResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, flagdomain.ErrInvalidTenant
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		return nil, flagdomain.ErrInvalidActor
	}
	if len(req.Flags) == 0 {
		return nil, flagdomain.ErrEmptyBulkUpdate
	}

	keys := make([]string, 0, len(req.Flags))
	for key := range req.Flags {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			return nil, flagdomain.ErrInvalidKey
		}
		if !entdomain.IsKnownFeatureKey(trimmed) {
			return nil, flagdomain.ErrUnknownKey
		}
		keys = append(keys, trimmed)
	}
	sort.Strings(keys)

	// All writes and their audit rows land in one transaction: either
	// every flag in the batch changes or none do.
	saved := make([]flagdomain.FeatureFlag, 0, len(keys))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, key := range keys {
			row, err := s.writeFlag(ctx, tx, tenantID, key, req.Flags[key], changedBy, req.Reason)
			if err != nil {
				return err
			}
			saved = append(saved, row)
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to bulk set flags", zap.Int("count", len(keys)), zap.Error(err))
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordFlagMutation(ctx, "bulk_set")
	}
	s.cache.InvalidateTenant(tenantID.String())
	out := make([]flagdomain.FlagResponse, 0, len(saved))
	for _, flag := range saved {
		out = append(out, toResponse(flag))
	}
	return out, nil
}

func (s *Service) ResetToDefaults(ctx context.Context, req flagdomain.ResetFlagsRequest) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return flagdomain.ErrInvalidTenant
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		return flagdomain.ErrInvalidActor
	}

	// The read runs inside the transaction so a flag written concurrently
	// cannot be deleted without its audit row.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.ListByTenant(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if err := s.repo.DeleteByTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		for _, flag := range existing {
			entry := auditdomain.Entry{
				TenantID:   tenantID,
				ChangeType: auditdomain.ChangeTypeFlag,
				EntityType: "feature_flag",
				EntityKey:  flag.Key,
				OldValue:   encodeFlagValue(flag.Enabled),
				NewValue:   []byte(`null`),
				ChangedBy:  changedBy,
				Reason:     req.Reason,
			}
			if err := s.audit.Record(ctx, tx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error("failed to reset flags", zap.Error(err))
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordFlagMutation(ctx, "reset")
	}
	s.cache.InvalidateTenant(tenantID.String())
	return nil
}

// writeFlag upserts one flag row and its audit entry inside the caller's
// transaction.
func (s *Service) writeFlag(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, key string, enabled bool, changedBy string, reason *string) (flagdomain.FeatureFlag, error) {
	existing, err := s.repo.Find(ctx, tx, tenantID, key)
	if err != nil {
		return flagdomain.FeatureFlag{}, err
	}

	now := s.clock.Now()
	var row flagdomain.FeatureFlag
	var oldValue []byte
	if existing != nil {
		oldValue = encodeFlagValue(existing.Enabled)
		row = *existing
		row.Enabled = enabled
		row.LastChangedBy = changedBy
		row.LastChangedAt = now
		row.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, &row); err != nil {
			return flagdomain.FeatureFlag{}, err
		}
	} else {
		row = flagdomain.FeatureFlag{
			ID:            s.genID.Generate(),
			TenantID:      tenantID,
			Key:           key,
			Enabled:       enabled,
			LastChangedBy: changedBy,
			LastChangedAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.Insert(ctx, tx, &row); err != nil {
			return flagdomain.FeatureFlag{}, err
		}
	}

	entry := auditdomain.Entry{
		TenantID:   tenantID,
		ChangeType: auditdomain.ChangeTypeFlag,
		EntityType: "feature_flag",
		EntityKey:  key,
		OldValue:   oldValue,
		NewValue:   encodeFlagValue(enabled),
		ChangedBy:  changedBy,
		Reason:     reason,
	}
	if err := s.audit.Record(ctx, tx, entry); err != nil {
		return flagdomain.FeatureFlag{}, err
	}
	return row, nil
}

func encodeFlagValue(enabled bool) []byte {
	if enabled {
		return []byte(`{"enabled":true}`)
	}
	return []byte(`{"enabled":false}`)
}

func toResponse(flag flagdomain.FeatureFlag) flagdomain.FlagResponse {
	return flagdomain.FlagResponse{
		Key:           flag.Key,
		Enabled:       flag.Enabled,
		LastChangedBy: flag.LastChangedBy,
		LastChangedAt: flag.LastChangedAt,
	}
}
