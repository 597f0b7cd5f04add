package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/entitle/internal/audit/domain"
	"github.com/smallbiznis/entitle/internal/cache"
	"github.com/smallbiznis/entitle/internal/clock"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	"github.com/smallbiznis/entitle/internal/observability/metrics"
	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
	subdomain "github.com/smallbiznis/entitle/internal/subscription/domain"
	"github.com/smallbiznis/entitle/internal/tenantctx"
	"github.com/smallbiznis/entitle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultTrialDays = 14

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     subdomain.Repository
	PlanRepo plandomain.Repository
	Audit    auditdomain.Service
	Cache    cache.ResolverCache
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     subdomain.Repository
	planRepo plandomain.Repository
	audit    auditdomain.Service
	cache    cache.ResolverCache
	metrics  *metrics.Metrics
}

func NewService(p Params) subdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		planRepo: p.PlanRepo,
		audit:    p.Audit,
		cache:    p.Cache,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req subdomain.CreateSubscriptionRequest) (*subdomain.Response, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, subdomain.ErrInvalidTenant
	}

	plan, err := s.planRepo.FindByCode(ctx, s.db, strings.TrimSpace(req.PlanCode))
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, subdomain.ErrInvalidPlanCode
	}

	trialDays := defaultTrialDays
	if req.TrialDays != nil {
		if *req.TrialDays < 0 {
			return nil, subdomain.ErrInvalidTrialDays
		}
		trialDays = *req.TrialDays
	}

	now := s.clock.Now()
	subscription := subdomain.Subscription{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		PlanID:    plan.ID,
		Status:    subdomain.SubscriptionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if trialDays > 0 {
		trialEnd := now.AddDate(0, 0, trialDays)
		subscription.Status = subdomain.SubscriptionStatusTrial
		subscription.TrialStart = &now
		subscription.TrialEnd = &trialEnd
	}

	if err := s.repo.Insert(ctx, s.db, &subscription); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, subdomain.ErrSubscriptionExists
		}
		s.log.Error("failed to create subscription", zap.Error(err))
		return nil, err
	}

	s.cache.InvalidateTenant(tenantID.String())
	resp := toResponse(subscription, plan.Code)
	return &resp, nil
}

func (s *Service) Get(ctx context.Context) (*subdomain.Response, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, subdomain.ErrInvalidTenant
	}

	subscription, err := s.repo.FindByTenantID(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subdomain.ErrSubscriptionNotFound
	}

	planCode := ""
	if plan, err := s.planRepo.FindByID(ctx, s.db, subscription.PlanID); err == nil && plan != nil {
		planCode = plan.Code
	}

	resp := toResponse(*subscription, planCode)
	return &resp, nil
}

func (s *Service) ChangePlan(ctx context.Context, req subdomain.ChangePlanRequest) (*subdomain.Response, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, subdomain.ErrInvalidTenant
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		return nil, subdomain.ErrInvalidActor
	}

	subscription, err := s.repo.FindByTenantID(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subdomain.ErrSubscriptionNotFound
	}

	newPlan, err := s.planRepo.FindByCode(ctx, s.db, strings.TrimSpace(req.NewPlanCode))
	if err != nil {
		return nil, err
	}
	if newPlan == nil {
		return nil, subdomain.ErrInvalidPlanCode
	}

	oldPlan, err := s.planRepo.FindByID(ctx, s.db, subscription.PlanID)
	if err != nil {
		return nil, err
	}

	oldValue := []byte(`null`)
	if oldPlan != nil {
		oldValue = []byte(`{"plan_code":"` + oldPlan.Code + `"}`)
	}
	newValue := []byte(`{"plan_code":"` + newPlan.Code + `"}`)

	subscription.PlanID = newPlan.ID
	subscription.UpdatedAt = s.clock.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			ChangeType: auditdomain.ChangeTypePlanChange,
			EntityType: "subscription",
			EntityKey:  subscription.ID.String(),
			OldValue:   oldValue,
			NewValue:   newValue,
			ChangedBy:  changedBy,
			Reason:     req.Reason,
		})
	})
	if err != nil {
		s.log.Error("failed to change plan", zap.Error(err))
		return nil, err
	}

	s.cache.InvalidateTenant(tenantID.String())
	resp := toResponse(*subscription, newPlan.Code)
	return &resp, nil
}

// allowedTransitions maps each status to the states it may move to.
var allowedTransitions = map[subdomain.SubscriptionStatus][]subdomain.SubscriptionStatus{
	subdomain.SubscriptionStatusTrial: {
		subdomain.SubscriptionStatusActive,
		subdomain.SubscriptionStatusCanceled,
		subdomain.SubscriptionStatusSuspended,
	},
	subdomain.SubscriptionStatusActive: {
		subdomain.SubscriptionStatusPastDue,
		subdomain.SubscriptionStatusCanceled,
		subdomain.SubscriptionStatusSuspended,
	},
	subdomain.SubscriptionStatusPastDue: {
		subdomain.SubscriptionStatusActive,
		subdomain.SubscriptionStatusCanceled,
		subdomain.SubscriptionStatusSuspended,
	},
	subdomain.SubscriptionStatusSuspended: {
		subdomain.SubscriptionStatusActive,
		subdomain.SubscriptionStatusCanceled,
	},
	subdomain.SubscriptionStatusCanceled: {
		subdomain.SubscriptionStatusActive,
	},
}

func (s *Service) Transition(ctx context.Context, req subdomain.TransitionRequest) (*subdomain.Response, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, subdomain.ErrInvalidTenant
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		return nil, subdomain.ErrInvalidActor
	}

	switch req.TargetStatus {
	case subdomain.SubscriptionStatusTrial:
		return nil, subdomain.ErrInvalidTargetStatus
	case subdomain.SubscriptionStatusActive,
		subdomain.SubscriptionStatusPastDue,
		subdomain.SubscriptionStatusCanceled,
		subdomain.SubscriptionStatusSuspended:
	default:
		return nil, subdomain.ErrInvalidTargetStatus
	}

	subscription, err := s.repo.FindByTenantID(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subdomain.ErrSubscriptionNotFound
	}

	if !transitionAllowed(subscription.Status, req.TargetStatus) {
		return nil, subdomain.ErrInvalidTransition
	}

	now := s.clock.Now()
	oldStatus := subscription.Status
	subscription.Status = req.TargetStatus
	subscription.UpdatedAt = now
	switch req.TargetStatus {
	case subdomain.SubscriptionStatusCanceled:
		subscription.CanceledAt = &now
	case subdomain.SubscriptionStatusSuspended:
		subscription.SuspendedAt = &now
	case subdomain.SubscriptionStatusActive:
		subscription.CanceledAt = nil
		subscription.SuspendedAt = nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			ChangeType: auditdomain.ChangeTypePlanChange,
			EntityType: "subscription_status",
			EntityKey:  subscription.ID.String(),
			OldValue:   []byte(`{"status":"` + string(oldStatus) + `"}`),
			NewValue:   []byte(`{"status":"` + string(req.TargetStatus) + `"}`),
			ChangedBy:  changedBy,
			Reason:     req.Reason,
		})
	})
	if err != nil {
		s.log.Error("failed to transition subscription", zap.Error(err))
		return nil, err
	}

	s.cache.InvalidateTenant(tenantID.String())
	planCode := ""
	if plan, err := s.planRepo.FindByID(ctx, s.db, subscription.PlanID); err == nil && plan != nil {
		planCode = plan.Code
	}
	resp := toResponse(*subscription, planCode)
	return &resp, nil
}

func transitionAllowed(from, to subdomain.SubscriptionStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

func (s *Service) UpsertOverride(ctx context.Context, req subdomain.UpsertOverrideRequest) (*subdomain.OverrideResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, subdomain.ErrInvalidTenant
	}
	createdBy := strings.TrimSpace(req.CreatedBy)
	if createdBy == "" {
		return nil, subdomain.ErrInvalidActor
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return nil, subdomain.ErrInvalidOverrideKey
	}

	switch req.Type {
	case plandomain.EntitlementTypeFeature, plandomain.EntitlementTypeAddon:
		if _, ok := entdomain.DecodeFeatureValue(req.Value); !ok {
			return nil, subdomain.ErrInvalidOverrideValue
		}
	case plandomain.EntitlementTypeLimit:
		if _, ok := entdomain.DecodeLimitValue(req.Value); !ok {
			return nil, subdomain.ErrInvalidOverrideValue
		}
	default:
		return nil, subdomain.ErrInvalidOverrideType
	}

	subscription, err := s.repo.FindByTenantID(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subdomain.ErrSubscriptionNotFound
	}

	existing, err := s.repo.FindOverride(ctx, s.db, subscription.ID, key)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	var row subdomain.SubscriptionOverride
	var oldValue []byte
	if existing != nil {
		oldValue = []byte(existing.Value)
		row = *existing
		row.Type = req.Type
		row.Value = datatypes.JSON(req.Value)
		row.CreatedBy = createdBy
		row.Reason = req.Reason
		row.ExpiresAt = req.ExpiresAt
		row.UpdatedAt = now
	} else {
		row = subdomain.SubscriptionOverride{
			ID:             s.genID.Generate(),
			SubscriptionID: subscription.ID,
			Type:           req.Type,
			Key:            key,
			Value:          datatypes.JSON(req.Value),
			CreatedBy:      createdBy,
			Reason:         req.Reason,
			ExpiresAt:      req.ExpiresAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if existing != nil {
			if err := s.repo.UpdateOverride(ctx, tx, &row); err != nil {
				return err
			}
		} else {
			if err := s.repo.InsertOverride(ctx, tx, &row); err != nil {
				return err
			}
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			ChangeType: auditdomain.ChangeTypeOverride,
			EntityType: "subscription_override",
			EntityKey:  key,
			OldValue:   oldValue,
			NewValue:   req.Value,
			ChangedBy:  createdBy,
			Reason:     req.Reason,
		})
	})
	if err != nil {
		s.log.Error("failed to upsert override", zap.String("entitlement_key", key), zap.Error(err))
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordOverrideChange(ctx, "upsert")
	}
	s.cache.InvalidateTenant(tenantID.String())
	resp := toOverrideResponse(row, now)
	return &resp, nil
}

func (s *Service) ExpireOverride(ctx context.Context, req subdomain.ExpireOverrideRequest) (*subdomain.OverrideResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, subdomain.ErrInvalidTenant
	}
	changedBy := strings.TrimSpace(req.ChangedBy)
	if changedBy == "" {
		return nil, subdomain.ErrInvalidActor
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		return nil, subdomain.ErrInvalidOverrideKey
	}

	subscription, err := s.repo.FindByTenantID(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subdomain.ErrSubscriptionNotFound
	}

	existing, err := s.repo.FindOverride(ctx, s.db, subscription.ID, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, subdomain.ErrOverrideNotFound
	}

	now := s.clock.Now()
	oldValue := []byte(existing.Value)
	row := *existing
	row.ExpiresAt = &now
	row.UpdatedAt = now

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateOverride(ctx, tx, &row); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, auditdomain.Entry{
			TenantID:   tenantID,
			ChangeType: auditdomain.ChangeTypeOverride,
			EntityType: "subscription_override",
			EntityKey:  key,
			OldValue:   oldValue,
			NewValue:   []byte(`null`),
			ChangedBy:  changedBy,
			Reason:     req.Reason,
		})
	})
	if err != nil {
		s.log.Error("failed to expire override", zap.String("entitlement_key", key), zap.Error(err))
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordOverrideChange(ctx, "expire")
	}
	s.cache.InvalidateTenant(tenantID.String())
	resp := toOverrideResponse(row, now)
	return &resp, nil
}

func (s *Service) ListOverrides(ctx context.Context, includeExpired bool) ([]subdomain.OverrideResponse, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok || tenantID == 0 {
		return nil, subdomain.ErrInvalidTenant
	}

	subscription, err := s.repo.FindByTenantID(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subdomain.ErrSubscriptionNotFound
	}

	overrides, err := s.repo.ListOverrides(ctx, s.db, subscription.ID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	out := make([]subdomain.OverrideResponse, 0, len(overrides))
	for _, override := range overrides {
		if !includeExpired && override.IsExpired(now) {
			continue
		}
		out = append(out, toOverrideResponse(override, now))
	}
	return out, nil
}

func toResponse(subscription subdomain.Subscription, planCode string) subdomain.Response {
	return subdomain.Response{
		ID:         subscription.ID.String(),
		TenantID:   subscription.TenantID.String(),
		PlanID:     subscription.PlanID.String(),
		PlanCode:   planCode,
		Status:     subscription.Status,
		TrialStart: subscription.TrialStart,
		TrialEnd:   subscription.TrialEnd,
		CreatedAt:  subscription.CreatedAt,
		UpdatedAt:  subscription.UpdatedAt,
	}
}

func toOverrideResponse(override subdomain.SubscriptionOverride, at time.Time) subdomain.OverrideResponse {
	return subdomain.OverrideResponse{
		ID:        override.ID.String(),
		Type:      override.Type,
		Key:       override.Key,
		Value:     []byte(override.Value),
		CreatedBy: override.CreatedBy,
		Reason:    override.Reason,
		ExpiresAt: override.ExpiresAt,
		Expired:   override.IsExpired(at),
		CreatedAt: override.CreatedAt,
		UpdatedAt: override.UpdatedAt,
	}
}
