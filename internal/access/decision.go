// Package access hosts the decision engine: the single entry point the
// rest of the application calls to gate a feature. It merges the resolved
// entitlement snapshot, the tenant's feature flags, and the static role
// tables into one self-describing decision.
package access

// Reason codes carried on an AccessDecision.
const (
	ReasonSuperadminBypass      = "superadmin_bypass"
	ReasonNotEntitledByPlan     = "not_entitled_by_plan"
	ReasonFlagDisabledByManager = "flag_disabled_by_manager"
	ReasonRoleInsufficient      = "role_insufficient"
	ReasonAllowed               = "allowed"
)

// AccessDecision is the full result of one feature check. All three
// component booleans are always populated so a denied decision explains
// itself; Reason names the first failing check.
type AccessDecision struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason"`
	Entitled      bool   `json:"entitled"`
	FlagActive    bool   `json:"flag_active"`
	RolePermitted bool   `json:"role_permitted"`
}
