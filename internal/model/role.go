package model

import "strings"

// Role is the closed set of built-in account types that carry
// authorization meaning. Account types with other names may exist but
// grant nothing.
type Role string

const (
	RoleNone    Role = ""
	RoleTourist Role = "TOURIST"
	RoleGuide   Role = "GUIDE"
	RoleAdmin   Role = "ADMIN"
)

// BuiltinRoles lists the roles seeded into account_types.
var BuiltinRoles = []Role{RoleAdmin, RoleGuide, RoleTourist}

// ParseRole maps an account type name to a Role. Matching ignores case
// and surrounding whitespace.
func ParseRole(name string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(name))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleGuide:
		return RoleGuide, true
	case RoleTourist:
		return RoleTourist, true
	}
	return RoleNone, false
}

// IsBuiltin reports whether name is one of the seeded account type names.
func IsBuiltin(name string) bool {
	_, ok := ParseRole(name)
	return ok
}

func (r Role) rank() int {
	switch r {
	case RoleAdmin:
		return 3
	case RoleGuide:
		return 2
	case RoleTourist:
		return 1
	}
	return 0
}

// CanRequest reports whether a holder of r may petition for target.
// GUIDE may ask for ADMIN; TOURIST may ask for GUIDE or ADMIN.
func (r Role) CanRequest(target Role) bool {
	switch r {
	case RoleGuide:
		return target == RoleAdmin
	case RoleTourist:
		return target == RoleGuide || target == RoleAdmin
	}
	return false
}

func (r Role) String() string { return string(r) }
