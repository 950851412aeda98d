package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoles(t *testing.T) {
	roles := NewRoles("alice")

	assert.True(t, roles.AddEditor("bob"))
	assert.False(t, roles.AddEditor("bob"))
	assert.False(t, roles.AddEditor("alice"), "owner keeps its role")
	assert.Equal(t, RoleOwner, roles["alice"])
	assert.Equal(t, "alice", roles.Owner())
	assert.NoError(t, roles.Validate())

	assert.Equal(t, []Member{
		{ParticipantID: "alice", Role: RoleOwner},
		{ParticipantID: "bob", Role: RoleEditor},
	}, roles.Members())
}

func TestRolesValidate(t *testing.T) {
	tests := []struct {
		name    string
		roles   Roles
		wantErr bool
	}{
		{"single owner", Roles{"a": RoleOwner, "b": RoleEditor}, false},
		{"no owner", Roles{"a": RoleEditor}, true},
		{"two owners", Roles{"a": RoleOwner, "b": RoleOwner}, true},
		{"unknown role", Roles{"a": RoleOwner, "b": "viewer"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.roles.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
