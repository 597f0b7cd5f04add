package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entitle/internal/clock"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
	"github.com/smallbiznis/entitle/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  plandomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  plandomain.Repository
}

func NewService(p Params) plandomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("plan.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req plandomain.CreatePlanRequest) (*plandomain.Response, error) {
	code := strings.TrimSpace(strings.ToLower(req.Code))
	if code == "" {
		return nil, plandomain.ErrInvalidCode
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, plandomain.ErrInvalidName
	}
	currency := strings.TrimSpace(strings.ToUpper(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	seen := make(map[string]struct{}, len(req.Entitlements))
	entitlements := make([]plandomain.PlanEntitlement, 0, len(req.Entitlements))
	now := s.clock.Now()
	for _, item := range req.Entitlements {
		key := strings.TrimSpace(item.Key)
		if key == "" {
			return nil, plandomain.ErrInvalidKey
		}
		if _, dup := seen[key]; dup {
			return nil, plandomain.ErrDuplicateKeyInPlan
		}
		seen[key] = struct{}{}

		switch item.Type {
		case plandomain.EntitlementTypeFeature, plandomain.EntitlementTypeAddon:
			if _, ok := entdomain.DecodeFeatureValue(item.Value); !ok {
				return nil, plandomain.ErrInvalidValue
			}
		case plandomain.EntitlementTypeLimit:
			if _, ok := entdomain.DecodeLimitValue(item.Value); !ok {
				return nil, plandomain.ErrInvalidValue
			}
		default:
			return nil, plandomain.ErrInvalidType
		}

		entitlements = append(entitlements, plandomain.PlanEntitlement{
			ID:        s.genID.Generate(),
			Type:      item.Type,
			Key:       key,
			Value:     datatypes.JSON(item.Value),
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	plan := plandomain.Plan{
		ID:                 s.genID.Generate(),
		Code:               code,
		Name:               name,
		Description:        req.Description,
		MonthlyPriceCents:  req.MonthlyPriceCents,
		Currency:           currency,
		Active:             true,
		LegacyEntitlements: legacyBlob(entitlements),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for i := range entitlements {
		entitlements[i].PlanID = plan.ID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &plan); err != nil {
			return err
		}
		return s.repo.InsertEntitlements(ctx, tx, entitlements)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, plandomain.ErrDuplicateCode
		}
		s.log.Error("failed to create plan", zap.String("code", code), zap.Error(err))
		return nil, err
	}

	resp := toResponse(plan, entitlements)
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]plandomain.Response, error) {
	plans, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}

	out := make([]plandomain.Response, 0, len(plans))
	for _, plan := range plans {
		entitlements, err := s.repo.ListEntitlements(ctx, s.db, plan.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, toResponse(plan, entitlements))
	}
	return out, nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (*plandomain.Response, error) {
	plan, err := s.repo.FindByCode(ctx, s.db, code)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrPlanNotFound
	}

	entitlements, err := s.repo.ListEntitlements(ctx, s.db, plan.ID)
	if err != nil {
		return nil, err
	}

	resp := toResponse(*plan, entitlements)
	return &resp, nil
}

// legacyBlob keeps the denormalized entitlement map in sync with the
// normalized rows so readers on either path see the same snapshot.
func legacyBlob(entitlements []plandomain.PlanEntitlement) datatypes.JSONMap {
	blob := make(datatypes.JSONMap, len(entitlements))
	for _, item := range entitlements {
		blob[item.Key] = json.RawMessage(item.Value)
	}
	return blob
}

func toResponse(plan plandomain.Plan, entitlements []plandomain.PlanEntitlement) plandomain.Response {
	resp := plandomain.Response{
		ID:                plan.ID.String(),
		Code:              plan.Code,
		Name:              plan.Name,
		Description:       plan.Description,
		MonthlyPriceCents: plan.MonthlyPriceCents,
		Currency:          plan.Currency,
		Active:            plan.Active,
		CreatedAt:         plan.CreatedAt,
		UpdatedAt:         plan.UpdatedAt,
	}
	for _, item := range entitlements {
		resp.Entitlements = append(resp.Entitlements, plandomain.EntitlementResponse{
			Type:  item.Type,
			Key:   item.Key,
			Value: []byte(item.Value),
		})
	}
	return resp
}
