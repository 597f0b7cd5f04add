// Package domain defines the resolved entitlement snapshot and the closed
// set of feature and limit keys. Keys persist as free-form strings for
// backward compatibility; internal callers use these constants.
package domain

// Base features, included in every tier.
const (
	FeatureInbox       = "inbox_enabled"
	FeatureLeads       = "leads_enabled"
	FeatureNotes       = "notes_enabled"
	FeatureAttachments = "attachments_enabled"
	FeatureCalendar    = "calendar_enabled"
	FeatureTemplates   = "templates_enabled"
	FeatureSSE         = "sse_enabled"
	FeatureSearch      = "search_enabled"
)

// Advanced features, gated by tier.
const (
	FeatureAPIAccess      = "api_access_enabled"
	FeatureMetrics        = "metrics_enabled"
	FeatureAIAssistant    = "ai_assistant_enabled"
	FeatureBulkExport     = "bulk_export_enabled"
	FeatureWebhooks       = "webhooks_enabled"
	FeatureCustomBranding = "custom_branding_enabled"
)

// Security and experimental features.
const (
	FeatureAuditExport    = "audit_export_enabled"
	FeatureSSO            = "sso_enabled"
	FeatureIPAllowlist    = "ip_allowlist_enabled"
	FeatureExperimentalUI = "experimental_ui_enabled"
)

// Quantitative limits.
const (
	LimitLeadsPerMonth    = "leads_per_month"
	LimitMessagesPerMonth = "messages_per_month"
	LimitSellers          = "sellers"
	LimitAITokensPerMonth = "ai_tokens_per_month"
)

var knownFeatureKeys = []string{
	FeatureInbox,
	FeatureLeads,
	FeatureNotes,
	FeatureAttachments,
	FeatureCalendar,
	FeatureTemplates,
	FeatureSSE,
	FeatureSearch,
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
}

var knownLimitKeys = []string{
	LimitLeadsPerMonth,
	LimitMessagesPerMonth,
	LimitSellers,
	LimitAITokensPerMonth,
}

// KnownFeatureKeys returns every registered feature key in stable order.
func KnownFeatureKeys() []string {
	out := make([]string, len(knownFeatureKeys))
	copy(out, knownFeatureKeys)
	return out
}

// KnownLimitKeys returns every registered limit key in stable order.
func KnownLimitKeys() []string {
	out := make([]string, len(knownLimitKeys))
	copy(out, knownLimitKeys)
	return out
}

// IsKnownFeatureKey reports whether key is in the feature registry. An
// unknown key still resolves (to not-entitled); this exists so admin
// surfaces can warn about probable typos.
func IsKnownFeatureKey(key string) bool {
	for _, known := range knownFeatureKeys {
		if known == key {
			return true
		}
	}
	return false
}
