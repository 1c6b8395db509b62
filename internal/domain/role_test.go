package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/internal/domain"
)

func TestAssignableRolesTable(t *testing.T) {
	cases := map[domain.Role][]domain.Role{
		domain.RoleSuperAdmin: domain.Roles(),
		domain.RoleAdmin:      {domain.RoleStaff, domain.RoleTrialStaff},
		domain.RoleDeveloper:  {domain.RoleTrialStaff},
		domain.RoleStaff:      {domain.RoleTrialStaff},
		domain.RoleTrialStaff: {},
		domain.Role(""):       {},
		domain.Role("owner"):  {},
	}
	for creator, want := range cases {
		got := domain.AssignableRoles(creator)
		assert.ElementsMatch(t, want, got, "creator %q", creator)
	}
}

func TestAssignableRolesNeverOutrankCreator(t *testing.T) {
	for _, creator := range domain.Roles() {
		for _, r := range domain.AssignableRoles(creator) {
			require.True(t, r.Valid())
			assert.False(t, r.Outranks(creator), "%s may not hand out %s", creator, r)
		}
	}
}

func TestAssignableRolesReturnsCopy(t *testing.T) {
	roles := domain.AssignableRoles(domain.RoleAdmin)
	roles[0] = domain.RoleSuperAdmin
	assert.Equal(t, []domain.Role{domain.RoleStaff, domain.RoleTrialStaff}, domain.AssignableRoles(domain.RoleAdmin))
}

func TestRankOrdering(t *testing.T) {
	roles := domain.Roles()
	for i := 1; i < len(roles); i++ {
		assert.True(t, roles[i-1].Outranks(roles[i]))
	}
	assert.Equal(t, 0, domain.Role("ghost").Rank())
	assert.False(t, domain.Role("").Valid())
}

func TestParseRole(t *testing.T) {
	r, ok := domain.ParseRole(" Staff ")
	assert.True(t, ok)
	assert.Equal(t, domain.RoleStaff, r)

	_, ok = domain.ParseRole("owner")
	assert.False(t, ok)
	_, ok = domain.ParseRole("")
	assert.False(t, ok)
}
