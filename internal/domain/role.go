package domain

import "strings"

// Role is a rank in the organisation. Higher rank means more authority.
type Role string

const (
	RoleSuperAdmin Role = "super_admin"
	RoleAdmin      Role = "admin"
	RoleDeveloper  Role = "developer"
	RoleStaff      Role = "staff"
	RoleTrialStaff Role = "trial_staff"
)

var roleRank = map[Role]int{
	RoleSuperAdmin: 5,
	RoleAdmin:      4,
	RoleDeveloper:  3,
	RoleStaff:      2,
	RoleTrialStaff: 1,
}

var assignable = map[Role][]Role{
	RoleSuperAdmin: {RoleSuperAdmin, RoleAdmin, RoleDeveloper, RoleStaff, RoleTrialStaff},
	RoleAdmin:      {RoleStaff, RoleTrialStaff},
	RoleDeveloper:  {RoleTrialStaff},
	RoleStaff:      {RoleTrialStaff},
}

// Roles returns every known role, highest rank first.
func Roles() []Role {
	return []Role{RoleSuperAdmin, RoleAdmin, RoleDeveloper, RoleStaff, RoleTrialStaff}
}

// Rank returns 0 for unknown or empty roles.
func (r Role) Rank() int {
	return roleRank[r]
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

// AssignableRoles lists the roles a creator with role r may hand out, either
// when creating a user or when assigning a task to a role. Unknown and empty
// roles get nothing.
func AssignableRoles(r Role) []Role {
	roles := assignable[r]
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

// ParseRole accepts a role name in any case, with surrounding blanks.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}
