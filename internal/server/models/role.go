package models

import "fmt"

// Role is a closed set of authorization roles.
type Role string

const (
	RoleCustomer Role = "Customer"
	RoleAdmin    Role = "Admin"
	RoleManager  Role = "Manager"
)

// AllRoles lists every valid role in display order.
var AllRoles = []Role{RoleCustomer, RoleAdmin, RoleManager}

// ParseRole converts s to a Role. Matching is exact; anything outside the
// closed set is rejected.
func ParseRole(s string) (Role, error) {
	for _, r := range AllRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string { return string(r) }

// RoleNames returns roles as plain strings, e.g. for token claims.
func RoleNames(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
