package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleAtLeast(RoleOwner, RoleViewer))
	assert.True(t, RoleAtLeast(RoleManager, RoleStaff))
	assert.True(t, RoleAtLeast(RoleStaff, RoleStaff))
	assert.False(t, RoleAtLeast(RoleGovernance, RoleStaff))
	assert.False(t, RoleAtLeast(RoleViewer, RoleOwner))
	assert.False(t, RoleAtLeast("intruder", RoleViewer))
	assert.False(t, RoleAtLeast(RoleOwner, "intruder"))
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleViewer, RoleGovernance, RoleStaff, RoleManager, RoleOwner} {
		assert.True(t, ValidRole(role), role)
	}
	assert.False(t, ValidRole("admin"))
	assert.False(t, ValidRole(""))
}

func TestPrincipalContext(t *testing.T) {
	p := &Principal{UserID: "usr_1", Role: RoleManager, PropertyID: "prop_1"}
	ctx := WithPrincipal(context.Background(), p)
	got, ok := PrincipalFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, p, got)

	_, ok = PrincipalFrom(context.Background())
	assert.False(t, ok)
}
