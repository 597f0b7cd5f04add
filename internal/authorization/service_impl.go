// Package authorization guards the administrative HTTP surface with a
// policy-backed enforcer. It is separate from the static role tables the
// decision engine consults: this layer answers "may this caller hit this
// admin endpoint", not "may this tenant use this feature".
package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectPlan         = "plan"
	ObjectSubscription = "subscription"
	ObjectOverride     = "subscription_override"
	ObjectFeatureFlag  = "feature_flag"
	ObjectAuditLog     = "audit_log"
	ObjectEntitlement  = "entitlement"
)

const (
	ActionPlanView   = "plan.view"
	ActionPlanCreate = "plan.create"

	ActionSubscriptionView       = "subscription.view"
	ActionSubscriptionCreate     = "subscription.create"
	ActionSubscriptionChangePlan = "subscription.change_plan"
	ActionSubscriptionTransition = "subscription.transition"

	ActionOverrideView   = "subscription_override.view"
	ActionOverrideManage = "subscription_override.manage"

	ActionFeatureFlagView   = "feature_flag.view"
	ActionFeatureFlagManage = "feature_flag.manage"

	ActionAuditLogView = "audit_log.view"

	ActionEntitlementView = "entitlement.view"
)

var (
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidTenant = errors.New("invalid_tenant")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
	ErrInvalidRole   = errors.New("invalid_role")
	ErrForbidden     = errors.New("forbidden")
)

type Service interface {
	Authorize(ctx context.Context, actor, tenantID, role, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

// Authorize checks one admin call. The caller's role comes from the edge;
// superadmin short-circuits, everything else goes through the enforcer
// scoped to the tenant domain.
func (s *ServiceImpl) Authorize(ctx context.Context, actor, tenantID, role, object, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return ErrInvalidTenant
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	if actor == "system" {
		return nil
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "superadmin" {
		return nil
	}
	switch role {
	case "admin", "manager", "user":
	default:
		return ErrInvalidRole
	}

	subject, err := normalizeSubject(actor)
	if err != nil {
		return err
	}

	domain := fmt.Sprintf("tenant:%s", tenantID)
	roleName := fmt.Sprintf("role:%s", role)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Info("authorization denied",
			zap.String("subject", subject),
			zap.String("tenant_id", tenantID),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func normalizeSubject(actor string) (string, error) {
	if actor == "system" {
		return actor, nil
	}
	if strings.HasPrefix(actor, "user:") {
		raw := strings.TrimPrefix(actor, "user:")
		id, err := snowflake.ParseString(raw)
		if err != nil || id == 0 {
			return "", ErrInvalidActor
		}
		return fmt.Sprintf("user:%s", id.String()), nil
	}
	return "", ErrInvalidActor
}

// ensureGrouping keeps the subject bound to exactly one role per tenant
// domain, replacing stale bindings when the edge reports a new role.
func (s *ServiceImpl) ensureGrouping(subject, roleName, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		// User permissions (read-only self-service)
		{"role:user", ObjectEntitlement, ActionEntitlementView},
		{"role:user", ObjectPlan, ActionPlanView},

		// Manager permissions
		{"role:manager", ObjectEntitlement, ActionEntitlementView},
		{"role:manager", ObjectPlan, ActionPlanView},
		{"role:manager", ObjectFeatureFlag, ActionFeatureFlagView},
		{"role:manager", ObjectFeatureFlag, ActionFeatureFlagManage},
		{"role:manager", ObjectAuditLog, ActionAuditLogView},

		// Admin permissions
		{"role:admin", ObjectEntitlement, ActionEntitlementView},
		{"role:admin", ObjectPlan, ActionPlanView},
		{"role:admin", ObjectPlan, ActionPlanCreate},
		{"role:admin", ObjectFeatureFlag, ActionFeatureFlagView},
		{"role:admin", ObjectFeatureFlag, ActionFeatureFlagManage},
		{"role:admin", ObjectAuditLog, ActionAuditLogView},
		{"role:admin", ObjectSubscription, ActionSubscriptionView},
		{"role:admin", ObjectSubscription, ActionSubscriptionCreate},
		{"role:admin", ObjectSubscription, ActionSubscriptionChangePlan},
		{"role:admin", ObjectSubscription, ActionSubscriptionTransition},
		{"role:admin", ObjectOverride, ActionOverrideView},
		{"role:admin", ObjectOverride, ActionOverrideManage},
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
