package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/studylend/identity"
)

func TestRoleIsValid(t *testing.T) {
	assert.True(t, identity.RoleStudent.IsValid())
	assert.True(t, identity.RoleAdmin.IsValid())
	assert.True(t, identity.RoleSuperAdmin.IsValid())
	assert.False(t, identity.Role("manager").IsValid())
	assert.False(t, identity.Role("").IsValid())
}

func TestParseRole(t *testing.T) {
	role, ok := identity.ParseRole("admin")
	assert.True(t, ok)
	assert.Equal(t, identity.RoleAdmin, role)

	_, ok = identity.ParseRole("root")
	assert.False(t, ok)
}

func TestRoleSetIsExplicit(t *testing.T) {
	// Grants are not hierarchical: super_admin passes only when named.
	assert.True(t, identity.StaffRoles.Allows(identity.RoleAdmin))
	assert.True(t, identity.StaffRoles.Allows(identity.RoleSuperAdmin))
	assert.False(t, identity.StaffRoles.Allows(identity.RoleStudent))

	assert.True(t, identity.AdminOnlyRoles.Allows(identity.RoleAdmin))
	assert.False(t, identity.AdminOnlyRoles.Allows(identity.RoleSuperAdmin))

	assert.True(t, identity.SuperAdminRoles.Allows(identity.RoleSuperAdmin))
	assert.False(t, identity.SuperAdminRoles.Allows(identity.RoleAdmin))

	assert.True(t, identity.SessionRoles.Allows(identity.RoleStudent))
}
