package permission

import entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"

// Actions gated through CanPerformAction.
const (
	ActionViewEntitlements   = "view_entitlements"
	ActionViewFlags          = "view_flags"
	ActionManageFlags        = "manage_flags"
	ActionManageOverrides    = "manage_overrides"
	ActionViewAuditLogs      = "view_audit_logs"
	ActionManagePlans        = "manage_plans"
	ActionManageSubscription = "manage_subscription"
)

// roleActions is the static role to allowed-action table. Superadmin is
// absent on purpose: it bypasses the table entirely.
var roleActions = map[Role]map[string]struct{}{
	RoleAdmin: {
		ActionViewEntitlements:   {},
		ActionViewFlags:          {},
		ActionManageFlags:        {},
		ActionManageOverrides:    {},
		ActionViewAuditLogs:      {},
		ActionManagePlans:        {},
		ActionManageSubscription: {},
	},
	RoleManager: {
		ActionViewEntitlements: {},
		ActionViewFlags:        {},
		ActionManageFlags:      {},
		ActionViewAuditLogs:    {},
	},
	RoleUser: {
		ActionViewEntitlements: {},
	},
}

// featureMinRole maps gated features to the lowest role allowed to use
// them. Features not listed are open to every known role.
var featureMinRole = map[string]Role{
	entdomain.FeatureMetrics:        RoleManager,
	entdomain.FeatureAPIAccess:      RoleManager,
	entdomain.FeatureBulkExport:     RoleManager,
	entdomain.FeatureWebhooks:       RoleManager,
	entdomain.FeatureAuditExport:    RoleAdmin,
	entdomain.FeatureSSO:            RoleAdmin,
	entdomain.FeatureIPAllowlist:    RoleAdmin,
	entdomain.FeatureCustomBranding: RoleAdmin,
	entdomain.FeatureExperimentalUI: RoleAdmin,
}
