package authroles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	domainauth "github.com/target/members-console/internal/domain/auth"
)

func TestStaticRoleMapper_Map(t *testing.T) {
	m := NewStaticRoleMapper("ADMIN, console-admin", "USER")

	tests := []struct {
		name  string
		roles []string
		want  []domainauth.Role
	}{
		{"admin and user", []string{"USER", "ADMIN"}, []domainauth.Role{domainauth.RoleAdmin, domainauth.RoleUser}},
		{"alias", []string{"console-admin"}, []domainauth.Role{domainauth.RoleAdmin}},
		{"case insensitive", []string{"user"}, []domainauth.Role{domainauth.RoleUser}},
		{"unknown dropped", []string{"offline_access", "uma_authorization"}, []domainauth.Role{}},
		{"duplicates collapse", []string{"USER", "USER"}, []domainauth.Role{domainauth.RoleUser}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Map(tt.roles))
		})
	}
}

func TestNewStaticRoleMapper_SkipsBlanks(t *testing.T) {
	m := NewStaticRoleMapper(" , ADMIN,", "")
	assert.Equal(t, []string{"ADMIN"}, m.AdminRoles)
	assert.Empty(t, m.UserRoles)
}
