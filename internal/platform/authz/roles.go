package authz

import (
	"fmt"
	"strings"
)

// Role is a membership role within an organization. Roles form a total
// order used for "at least this privileged" checks; SuperAdmin sits outside
// the ladder and is granted only through the platform-operator pipeline.
type Role string

const (
	RoleViewer    Role = "VIEWER"
	RoleSecretary Role = "SECRETARY"
	RoleDoctor    Role = "DOCTOR"
	RoleAdmin     Role = "ADMIN"
	RoleOwner     Role = "OWNER"

	// RoleSuperAdmin is the platform-operator role. It is not part of the
	// tenant ladder and never satisfies a tenant role requirement.
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

var roleLevels = map[Role]int{
	RoleViewer:    1,
	RoleSecretary: 2,
	RoleDoctor:    3,
	RoleAdmin:     4,
	RoleOwner:     5,
}

// Level returns the role's position in the hierarchy, or 0 for unknown and
// off-ladder roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid reports whether r is a known tenant role or SUPER_ADMIN.
func (r Role) Valid() bool {
	return r == RoleSuperAdmin || roleLevels[r] > 0
}

// AtLeast reports whether r is at least as privileged as min. Off-ladder
// roles never satisfy a ladder requirement.
func (r Role) AtLeast(min Role) bool {
	rl, ml := r.Level(), min.Level()
	return rl > 0 && ml > 0 && rl >= ml
}

// ParseRole normalizes a stored role string.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// minRequired returns the lowest level among the declared roles: a caller
// passes if their level meets the least privileged acceptable role.
func minRequired(roles []Role) Role {
	min := Role("")
	for _, r := range roles {
		if r.Level() == 0 {
			continue
		}
		if min == "" || r.Level() < min.Level() {
			min = r
		}
	}
	return min
}

func roleNames(roles []Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}
