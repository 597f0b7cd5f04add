package permission

import (
	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reason codes returned by CanAccessFeature. The first failing check in
// entitlement, flag, role order determines the code.
const (
	ReasonSuperadminBypass = "superadmin_bypass"
	ReasonNotInPlan        = "not_in_plan"
	ReasonPlanDisabled     = "plan_disabled"
	ReasonFlagDisabled     = "flag_disabled"
	ReasonRoleInsufficient = "role_insufficient"
	ReasonAllowed          = "allowed"
)

type Params struct {
	fx.In

	Log *zap.Logger
}

// Service answers role questions from the compiled-in tables. It holds no
// state and never touches storage.
type Service struct {
	log *zap.Logger
}

func NewService(p Params) *Service {
	return &Service{log: p.Log.Named("permission.service")}
}

// CanPerformAction reports whether the principal may run the action.
// Superadmin bypasses the table; an unknown role fails closed. Custom
// permissions only ever add grants.
func (s *Service) CanPerformAction(principal Principal, action string) bool {
	if principal.Role == RoleSuperadmin {
		return true
	}
	if !principal.Role.Known() {
		return false
	}
	if actions, ok := roleActions[principal.Role]; ok {
		if _, allowed := actions[action]; allowed {
			return true
		}
	}
	return principal.HasCustomPermission(action)
}

// RoleAllowsFeature reports whether the principal's role clears the
// feature's minimum role. Features without a minimum are open to every
// known role.
func (s *Service) RoleAllowsFeature(principal Principal, featureKey string) bool {
	if principal.Role == RoleSuperadmin {
		return true
	}
	if !principal.Role.Known() {
		return false
	}
	min, gated := featureMinRole[featureKey]
	if !gated {
		return true
	}
	if principal.Role.AtLeast(min) {
		return true
	}
	return principal.HasCustomPermission(featureKey)
}

// CanAccessFeature combines an already-resolved entitlement snapshot and
// flag map with the role tables. Checks run in entitlement, flag, role
// order and the reason names the first failure.
func (s *Service) CanAccessFeature(principal Principal, featureKey string, entitlements entdomain.ResolvedEntitlements, flags map[string]bool) (bool, string) {
	if principal.Role == RoleSuperadmin {
		return true, ReasonSuperadminBypass
	}

	included, inPlan := entitlements.Features[featureKey]
	if !inPlan {
		return false, ReasonNotInPlan
	}
	if !included {
		return false, ReasonPlanDisabled
	}

	if active, set := flags[featureKey]; set && !active {
		return false, ReasonFlagDisabled
	}

	if !s.RoleAllowsFeature(principal, featureKey) {
		return false, ReasonRoleInsufficient
	}
	return true, ReasonAllowed
}

var Module = fx.Module("permission.service",
	fx.Provide(NewService),
)
