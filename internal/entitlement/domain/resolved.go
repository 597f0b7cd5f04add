package domain

// ValueSource records where a resolved value came from.
type ValueSource string

const (
	SourcePlan     ValueSource = "plan"
	SourceOverride ValueSource = "override"
)

// ResolvedEntitlements is the merged view of a tenant's plan and its live
// overrides. Source carries the provenance of every key present in
// Features or Limits.
type ResolvedEntitlements struct {
	Features map[string]bool        `json:"features"`
	Limits   map[string]int         `json:"limits"`
	Source   map[string]ValueSource `json:"source"`
}

// NewResolvedEntitlements returns an empty, non-nil snapshot.
func NewResolvedEntitlements() ResolvedEntitlements {
	return ResolvedEntitlements{
		Features: map[string]bool{},
		Limits:   map[string]int{},
		Source:   map[string]ValueSource{},
	}
}

// StarterDefaults is the documented fallback when a tenant has no live
// subscription. Billing inconsistencies degrade tenants to the starter
// tier instead of locking them out. Provenance is intentionally empty.
func StarterDefaults() ResolvedEntitlements {
	resolved := NewResolvedEntitlements()
	for _, key := range []string{
		FeatureInbox,
		FeatureLeads,
		FeatureNotes,
		FeatureAttachments,
		FeatureCalendar,
		FeatureTemplates,
		FeatureSSE,
		FeatureSearch,
	} {
		resolved.Features[key] = true
	}
	for _, key := range []string{
		FeatureAPIAccess,
		FeatureMetrics,
		FeatureAIAssistant,
		FeatureBulkExport,
		FeatureWebhooks,
		FeatureCustomBranding,
		FeatureAuditExport,
		FeatureSSO,
		FeatureIPAllowlist,
		FeatureExperimentalUI,
	} {
		resolved.Features[key] = false
	}
	resolved.Limits[LimitLeadsPerMonth] = 50
	resolved.Limits[LimitMessagesPerMonth] = 500
	resolved.Limits[LimitSellers] = 2
	resolved.Limits[LimitAITokensPerMonth] = 10000
	return resolved
}
