package permission

import "github.com/bwmarrin/snowflake"

// Principal is the authenticated caller as supplied by the edge. This
// layer performs no authentication of its own.
type Principal struct {
	ID                snowflake.ID
	TenantID          snowflake.ID
	Role              Role
	CustomPermissions []string
}

// HasCustomPermission reports whether the principal carries an explicit
// extra grant. Grants are additive only.
func (p Principal) HasCustomPermission(action string) bool {
	for _, granted := range p.CustomPermissions {
		if granted == action {
			return true
		}
	}
	return false
}
