package authroles

import (
	"strings"

	domainauth "github.com/target/members-console/internal/domain/auth"
)

// StaticRoleMapper maps provider role names onto application roles. Names
// are compared case-insensitively; unknown names are dropped.
type StaticRoleMapper struct {
	AdminRoles []string
	UserRoles  []string
}

// NewStaticRoleMapper builds a mapper from comma-separated role lists.
func NewStaticRoleMapper(adminRoles, userRoles string) StaticRoleMapper {
	return StaticRoleMapper{
		AdminRoles: splitList(adminRoles),
		UserRoles:  splitList(userRoles),
	}
}

func (m StaticRoleMapper) Map(roles []string) []domainauth.Role {
	out := make([]domainauth.Role, 0, 2)
	for _, r := range roles {
		switch {
		case contains(m.AdminRoles, r):
			out = append(out, domainauth.RoleAdmin)
		case contains(m.UserRoles, r):
			out = append(out, domainauth.RoleUser)
		}
	}
	return domainauth.NormalizeRoles(out)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
