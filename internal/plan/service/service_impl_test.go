package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/entitle/internal/clock"
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	plandomain "github.com/smallbiznis/entitle/internal/plan/domain"
	planrepository "github.com/smallbiznis/entitle/internal/plan/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var planDBSeq int64

func setupPlans(t *testing.T) plandomain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:plans%d?mode=memory&cache=shared", atomic.AddInt64(&planDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&plandomain.Plan{}, &plandomain.PlanEntitlement{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  planrepository.Provide(),
	})
}

func validPlanRequest(code string) plandomain.CreatePlanRequest {
	return plandomain.CreatePlanRequest{
		Code:              code,
		Name:              "Professional",
		MonthlyPriceCents: 4900,
		Currency:          "USD",
		Entitlements: []plandomain.CreatePlanEntitlementRequest{
			{
				Type:  plandomain.EntitlementTypeFeature,
				Key:   entdomain.FeatureMetrics,
				Value: json.RawMessage(`{"included":true}`),
			},
			{
				Type:  plandomain.EntitlementTypeLimit,
				Key:   entdomain.LimitSellers,
				Value: json.RawMessage(`{"max":10}`),
			},
		},
	}
}

func TestCreatePlanAndGetByCode(t *testing.T) {
	svc := setupPlans(t)

	created, err := svc.Create(context.Background(), validPlanRequest("professional"))
	require.NoError(t, err)
	assert.Equal(t, "professional", created.Code)
	assert.Len(t, created.Entitlements, 2)

	fetched, err := svc.GetByCode(context.Background(), "professional")
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)
	require.Len(t, fetched.Entitlements, 2)

	byKey := map[string]plandomain.EntitlementResponse{}
	for _, ent := range fetched.Entitlements {
		byKey[ent.Key] = ent
	}
	assert.JSONEq(t, `{"included":true}`, string(byKey[entdomain.FeatureMetrics].Value))
	assert.JSONEq(t, `{"max":10}`, string(byKey[entdomain.LimitSellers].Value))
}

func TestCreatePlanRejectsDuplicateCode(t *testing.T) {
	svc := setupPlans(t)

	_, err := svc.Create(context.Background(), validPlanRequest("professional"))
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validPlanRequest("professional"))
	assert.ErrorIs(t, err, plandomain.ErrDuplicateCode)
}

func TestCreatePlanValidation(t *testing.T) {
	svc := setupPlans(t)

	tests := []struct {
		name    string
		mutate  func(*plandomain.CreatePlanRequest)
		wantErr error
	}{
		{"empty code", func(r *plandomain.CreatePlanRequest) { r.Code = " " }, plandomain.ErrInvalidCode},
		{"empty name", func(r *plandomain.CreatePlanRequest) { r.Name = "" }, plandomain.ErrInvalidName},
		{
			"unknown entitlement type",
			func(r *plandomain.CreatePlanRequest) { r.Entitlements[0].Type = "bonus" },
			plandomain.ErrInvalidType,
		},
		{
			"empty entitlement key",
			func(r *plandomain.CreatePlanRequest) { r.Entitlements[0].Key = "" },
			plandomain.ErrInvalidKey,
		},
		{
			"feature value with limit shape",
			func(r *plandomain.CreatePlanRequest) { r.Entitlements[0].Value = json.RawMessage(`{"max":3}`) },
			plandomain.ErrInvalidValue,
		},
		{
			"limit value with feature shape",
			func(r *plandomain.CreatePlanRequest) { r.Entitlements[1].Value = json.RawMessage(`{"included":true}`) },
			plandomain.ErrInvalidValue,
		},
		{
			"repeated key",
			func(r *plandomain.CreatePlanRequest) { r.Entitlements[1] = r.Entitlements[0] },
			plandomain.ErrDuplicateKeyInPlan,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validPlanRequest("plan_" + tt.name)
			tt.mutate(&req)
			_, err := svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestListPlansOrderedByPrice(t *testing.T) {
	svc := setupPlans(t)

	enterprise := validPlanRequest("enterprise")
	enterprise.MonthlyPriceCents = 19900
	_, err := svc.Create(context.Background(), enterprise)
	require.NoError(t, err)

	starter := validPlanRequest("starter")
	starter.MonthlyPriceCents = 0
	_, err = svc.Create(context.Background(), starter)
	require.NoError(t, err)

	plans, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "starter", plans[0].Code)
	assert.Equal(t, "enterprise", plans[1].Code)
}

func TestGetByCodeNotFound(t *testing.T) {
	svc := setupPlans(t)

	_, err := svc.GetByCode(context.Background(), "missing")
	assert.ErrorIs(t, err, plandomain.ErrPlanNotFound)
}
