package identity

// Role is the user's role
type Role string

const (
	// RoleStudent is the default role for registered borrowers
	RoleStudent Role = "student"
	// RoleAdmin is the staff role (lead management, user administration)
	RoleAdmin Role = "admin"
	// RoleSuperAdmin is the immutable top-level role. It cannot be blocked,
	// demoted, or deleted through the API.
	RoleSuperAdmin Role = "super_admin"
)

// IsValid checks if the role is one of the predefined valid roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// ParseRole safely parses a string into a Role type
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []Role {
	return []Role{RoleStudent, RoleAdmin, RoleSuperAdmin}
}

// RoleSet is an explicit allow list for a guarded operation. Role grants are
// not hierarchical: super_admin only passes a check when the set names it.
type RoleSet map[Role]struct{}

// Roles builds a RoleSet from the given roles.
func Roles(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Allows reports whether the role is part of the set.
func (s RoleSet) Allows(role Role) bool {
	_, ok := s[role]
	return ok
}

// Predefined allow lists for the HTTP surface. Admin-scoped and
// superadmin-scoped operations are disjoint resource sets; staff routes list
// both roles explicitly.
var (
	// StaffRoles guards lead management and read-side admin surfaces.
	StaffRoles = Roles(RoleAdmin, RoleSuperAdmin)
	// AdminOnlyRoles guards /admin/users mutations.
	AdminOnlyRoles = Roles(RoleAdmin)
	// SuperAdminRoles guards /superadmin resources.
	SuperAdminRoles = Roles(RoleSuperAdmin)
	// SessionRoles guards operations any authenticated account may perform.
	SessionRoles = Roles(RoleStudent, RoleAdmin, RoleSuperAdmin)
)
