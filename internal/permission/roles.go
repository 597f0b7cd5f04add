// Package permission implements the static role model consulted on every
// access decision. The role and action tables are compiled in; tenants
// cannot reshape them, only grant extra actions per user.
package permission

import "strings"

// Role is a tenant-scoped access level. Superadmin is platform staff and
// bypasses all checks.
type Role string

const (
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleUser       Role = "user"
)

// ParseRole normalizes a role string. Unknown strings parse to the empty
// role, which is denied everything.
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleSuperadmin:
		return RoleSuperadmin
	case RoleAdmin:
		return RoleAdmin
	case RoleManager:
		return RoleManager
	case RoleUser:
		return RoleUser
	}
	return ""
}

// Known reports whether the role is one of the defined levels.
func (r Role) Known() bool {
	switch r {
	case RoleSuperadmin, RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// rank orders roles for at-least comparisons. Higher grants more.
func (r Role) rank() int {
	switch r {
	case RoleSuperadmin:
		return 4
	case RoleAdmin:
		return 3
	case RoleManager:
		return 2
	case RoleUser:
		return 1
	}
	return 0
}

// AtLeast reports whether r grants everything min does.
func (r Role) AtLeast(min Role) bool {
	return r.rank() >= min.rank()
}
