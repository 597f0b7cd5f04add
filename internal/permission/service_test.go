package permission

import (
	"testing"

	entdomain "github.com/smallbiznis/entitle/internal/entitlement/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newService() *Service {
	return NewService(Params{Log: zap.NewNop()})
}

func snapshotWith(key string, included bool) entdomain.ResolvedEntitlements {
	resolved := entdomain.NewResolvedEntitlements()
	resolved.Features[key] = included
	return resolved
}

func TestCanPerformAction(t *testing.T) {
	svc := newService()

	tests := []struct {
		name      string
		principal Principal
		action    string
		want      bool
	}{
		{"superadmin bypasses table", Principal{Role: RoleSuperadmin}, ActionManagePlans, true},
		{"admin manages overrides", Principal{Role: RoleAdmin}, ActionManageOverrides, true},
		{"manager manages flags", Principal{Role: RoleManager}, ActionManageFlags, true},
		{"manager cannot manage overrides", Principal{Role: RoleManager}, ActionManageOverrides, false},
		{"user views entitlements", Principal{Role: RoleUser}, ActionViewEntitlements, true},
		{"user cannot view flags", Principal{Role: RoleUser}, ActionViewFlags, false},
		{"unknown role fails closed", Principal{Role: Role("owner")}, ActionViewEntitlements, false},
		{"empty role fails closed", Principal{}, ActionViewEntitlements, false},
		{"custom permission adds grant", Principal{Role: RoleUser, CustomPermissions: []string{ActionViewAuditLogs}}, ActionViewAuditLogs, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.CanPerformAction(tt.principal, tt.action))
		})
	}
}

func TestRoleAllowsFeature(t *testing.T) {
	svc := newService()

	assert.True(t, svc.RoleAllowsFeature(Principal{Role: RoleUser}, entdomain.FeatureInbox))
	assert.False(t, svc.RoleAllowsFeature(Principal{Role: RoleUser}, entdomain.FeatureMetrics))
	assert.True(t, svc.RoleAllowsFeature(Principal{Role: RoleManager}, entdomain.FeatureMetrics))
	assert.False(t, svc.RoleAllowsFeature(Principal{Role: RoleManager}, entdomain.FeatureSSO))
	assert.True(t, svc.RoleAllowsFeature(Principal{Role: RoleAdmin}, entdomain.FeatureSSO))
	assert.True(t, svc.RoleAllowsFeature(Principal{Role: RoleSuperadmin}, entdomain.FeatureSSO))

	// Ungated features are still closed to unknown roles.
	assert.False(t, svc.RoleAllowsFeature(Principal{Role: Role("owner")}, entdomain.FeatureInbox))

	// A custom permission matching the feature key clears the gate.
	withGrant := Principal{Role: RoleUser, CustomPermissions: []string{entdomain.FeatureMetrics}}
	assert.True(t, svc.RoleAllowsFeature(withGrant, entdomain.FeatureMetrics))
}

func TestCanAccessFeatureReasonOrdering(t *testing.T) {
	svc := newService()
	admin := Principal{Role: RoleAdmin}

	tests := []struct {
		name         string
		principal    Principal
		entitlements entdomain.ResolvedEntitlements
		flags        map[string]bool
		wantAllowed  bool
		wantReason   string
	}{
		{
			name:         "key absent from snapshot",
			principal:    admin,
			entitlements: entdomain.NewResolvedEntitlements(),
			wantReason:   ReasonNotInPlan,
		},
		{
			name:         "plan excludes feature",
			principal:    admin,
			entitlements: snapshotWith(entdomain.FeatureMetrics, false),
			wantReason:   ReasonPlanDisabled,
		},
		{
			name:         "plan disabled wins over disabled flag",
			principal:    admin,
			entitlements: snapshotWith(entdomain.FeatureMetrics, false),
			flags:        map[string]bool{entdomain.FeatureMetrics: false},
			wantReason:   ReasonPlanDisabled,
		},
		{
			name:         "flag explicitly off",
			principal:    admin,
			entitlements: snapshotWith(entdomain.FeatureMetrics, true),
			flags:        map[string]bool{entdomain.FeatureMetrics: false},
			wantReason:   ReasonFlagDisabled,
		},
		{
			name:         "role below minimum",
			principal:    Principal{Role: RoleUser},
			entitlements: snapshotWith(entdomain.FeatureMetrics, true),
			wantReason:   ReasonRoleInsufficient,
		},
		{
			name:         "all checks pass",
			principal:    Principal{Role: RoleManager},
			entitlements: snapshotWith(entdomain.FeatureMetrics, true),
			flags:        map[string]bool{entdomain.FeatureMetrics: true},
			wantAllowed:  true,
			wantReason:   ReasonAllowed,
		},
		{
			name:         "superadmin skips every check",
			principal:    Principal{Role: RoleSuperadmin},
			entitlements: entdomain.NewResolvedEntitlements(),
			wantAllowed:  true,
			wantReason:   ReasonSuperadminBypass,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed, reason := svc.CanAccessFeature(tt.principal, entdomain.FeatureMetrics, tt.entitlements, tt.flags)
			assert.Equal(t, tt.wantAllowed, allowed)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleAdmin, ParseRole("admin"))
	assert.Equal(t, RoleAdmin, ParseRole(" ADMIN "))
	assert.Equal(t, Role(""), ParseRole("owner"))
	assert.False(t, Role("").Known())
	assert.True(t, RoleUser.Known())
}
