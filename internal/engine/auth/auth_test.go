package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine/auth"
)

const rootUID = "root-uid"

func user(uid string, role domain.Role) domain.User {
	return domain.User{UID: uid, Role: role, Status: domain.UserActive}
}

func teamUser(uid string, role domain.Role, team string) domain.User {
	u := user(uid, role)
	u.TeamID = &team
	return u
}

func rolePtr(r domain.Role) *domain.Role { return &r }

func TestCanAssignRoleMatchesAssignableRoles(t *testing.T) {
	for _, actor := range append(domain.Roles(), "", "ghost") {
		for _, target := range domain.Roles() {
			want := false
			for _, r := range domain.AssignableRoles(actor) {
				if r == target {
					want = true
				}
			}
			assert.Equal(t, want, auth.CanAssignRole(actor, target), "%s -> %s", actor, target)
		}
	}
}

func TestCanManageUserProtectsSuperAdminIdentity(t *testing.T) {
	p := auth.Policy{SuperAdminUID: rootUID}
	root := user(rootUID, domain.RoleSuperAdmin)
	for _, r := range domain.Roles() {
		assert.False(t, p.CanManageUser(user("x", r), root), "actor %s", r)
	}
	assert.False(t, p.CanManageUser(root, root))
}

func TestCanManageUserByRank(t *testing.T) {
	p := auth.Policy{SuperAdminUID: rootUID}
	admin := user("a", domain.RoleAdmin)
	dev := user("d", domain.RoleDeveloper)
	otherAdmin := user("a2", domain.RoleAdmin)
	secondSuper := user("s2", domain.RoleSuperAdmin)

	assert.True(t, p.CanManageUser(admin, dev))
	assert.False(t, p.CanManageUser(dev, admin))
	assert.False(t, p.CanManageUser(admin, otherAdmin))
	assert.True(t, p.CanManageUser(user(rootUID, domain.RoleSuperAdmin), otherAdmin))
	assert.True(t, p.CanManageUser(secondSuper, user("s3", domain.RoleSuperAdmin)))
}

func TestCanChangeUserStatus(t *testing.T) {
	p := auth.Policy{SuperAdminUID: rootUID}
	admin := user("a", domain.RoleAdmin)
	dev := user("d", domain.RoleDeveloper)
	staff := user("s", domain.RoleStaff)

	assert.True(t, p.CanChangeUserStatus(admin, staff, domain.UserBanned))
	assert.False(t, p.CanChangeUserStatus(dev, staff, domain.UserBanned), "developers may not change status")
	assert.False(t, p.CanChangeUserStatus(admin, staff, domain.UserStatus("frozen")))
	assert.False(t, p.CanChangeUserStatus(admin, user(rootUID, domain.RoleSuperAdmin), domain.UserBanned))
}

func TestCanChangeRoleNeedsBothRolesAssignable(t *testing.T) {
	p := auth.Policy{SuperAdminUID: rootUID}
	admin := user("a", domain.RoleAdmin)

	assert.True(t, p.CanChangeRole(admin, user("s", domain.RoleStaff), domain.RoleTrialStaff))
	assert.False(t, p.CanChangeRole(admin, user("d", domain.RoleDeveloper), domain.RoleStaff))
	assert.False(t, p.CanChangeRole(admin, user("s", domain.RoleStaff), domain.RoleDeveloper))
}

func TestCanCreateTask(t *testing.T) {
	for _, r := range domain.Roles() {
		assert.Equal(t, r != domain.RoleTrialStaff, auth.CanCreateTask(r), string(r))
	}
	assert.False(t, auth.CanCreateTask(""))
}

func TestAssignableUsers(t *testing.T) {
	pool := []domain.User{
		teamUser("1", domain.RoleAdmin, "t1"),
		teamUser("2", domain.RoleStaff, "t1"),
		teamUser("3", domain.RoleTrialStaff, "t2"),
		user("4", domain.RoleStaff),
	}
	admin := teamUser("a", domain.RoleAdmin, "t1")

	flat := auth.Policy{}
	got := flat.AssignableUsers(admin, pool)
	assert.Equal(t, []string{"2", "3", "4"}, uids(got))

	scoped := auth.Policy{TeamScoped: true}
	assert.Equal(t, []string{"2"}, uids(scoped.AssignableUsers(admin, pool)))
	assert.Len(t, scoped.AssignableUsers(user("root", domain.RoleSuperAdmin), pool), 4)
	assert.Empty(t, flat.AssignableUsers(user("t", domain.RoleTrialStaff), pool))
}

func uids(users []domain.User) []string {
	var out []string
	for _, u := range users {
		out = append(out, u.UID)
	}
	return out
}

func TestCanDeleteTask(t *testing.T) {
	task := domain.Task{AssignedByID: "dev", AssignedByRole: domain.RoleDeveloper}

	assert.True(t, auth.CanDeleteTask(user("dev", domain.RoleDeveloper), task))
	assert.True(t, auth.CanDeleteTask(user("other-dev", domain.RoleDeveloper), task))
	assert.True(t, auth.CanDeleteTask(user("adm", domain.RoleAdmin), task))
	assert.False(t, auth.CanDeleteTask(user("st", domain.RoleStaff), task))

	// the assigner keeps delete rights after being demoted
	assert.True(t, auth.CanDeleteTask(user("dev", domain.RoleTrialStaff), task))
}

func TestCanUpdateTaskStatus(t *testing.T) {
	task := domain.Task{
		AssignedByID:    "adm",
		AssignedByRole:  domain.RoleAdmin,
		AssignedUserIDs: []string{"s1"},
	}
	assert.True(t, auth.CanUpdateTaskStatus(user("s1", domain.RoleStaff), task))
	assert.False(t, auth.CanUpdateTaskStatus(user("s2", domain.RoleStaff), task))

	byRole := domain.Task{AssignedByID: "adm", AssignedByRole: domain.RoleAdmin, AssignedRole: rolePtr(domain.RoleStaff)}
	assert.True(t, auth.CanUpdateTaskStatus(user("s2", domain.RoleStaff), byRole))
	assert.False(t, auth.CanUpdateTaskStatus(user("d", domain.RoleDeveloper), byRole))
	assert.True(t, auth.CanUpdateTaskStatus(user("a2", domain.RoleAdmin), byRole))
}

func TestCanCompleteTaskPolicies(t *testing.T) {
	task := domain.Task{AssignedByRole: domain.RoleAdmin}
	exact := auth.Policy{Completion: auth.CompleteByAssignerRole}
	rank := auth.Policy{Completion: auth.CompleteByMinRank}

	assert.True(t, exact.CanCompleteTask(user("a", domain.RoleAdmin), task))
	assert.False(t, exact.CanCompleteTask(user("s", domain.RoleSuperAdmin), task))
	assert.False(t, exact.CanCompleteTask(user("st", domain.RoleStaff), task))

	assert.True(t, rank.CanCompleteTask(user("s", domain.RoleSuperAdmin), task))
	assert.True(t, rank.CanCompleteTask(user("a", domain.RoleAdmin), task))
	assert.False(t, rank.CanCompleteTask(user("d", domain.RoleDeveloper), task))
}

func TestCanManageMilestone(t *testing.T) {
	t1 := "t1"
	m := domain.Milestone{ID: "m", TeamID: &t1}
	single := auth.Policy{}
	multi := auth.Policy{TeamScoped: true}

	assert.False(t, single.CanManageMilestone(teamUser("a", domain.RoleAdmin, "t1"), m))
	assert.True(t, multi.CanManageMilestone(teamUser("a", domain.RoleAdmin, "t1"), m))
	assert.False(t, multi.CanManageMilestone(teamUser("a", domain.RoleAdmin, "t2"), m))
	assert.True(t, single.CanManageMilestone(user("root", domain.RoleSuperAdmin), m))
}

func TestTeamScopeVisibility(t *testing.T) {
	t1 := "t1"
	m := domain.Milestone{ID: "m", TeamID: &t1}
	single := auth.Policy{}
	multi := auth.Policy{TeamScoped: true}

	assert.True(t, single.CanSeeMilestone(user("s", domain.RoleStaff), m))
	assert.True(t, multi.CanSeeMilestone(teamUser("s", domain.RoleStaff, "t1"), m))
	assert.False(t, multi.CanSeeMilestone(teamUser("s", domain.RoleStaff, "t2"), m))
	assert.False(t, multi.CanSeeMilestone(user("s", domain.RoleAdmin), m))
	assert.False(t, multi.CanSeeMilestone(teamUser("s", domain.RoleStaff, "t1"), domain.Milestone{ID: "loose"}))
	assert.True(t, multi.CanSeeMilestone(user("root", domain.RoleSuperAdmin), m))

	alice := teamUser("alice", domain.RoleStaff, "t1")
	assert.True(t, multi.CanSeeUser(alice, alice))
	assert.True(t, multi.CanSeeUser(alice, teamUser("bob", domain.RoleAdmin, "t1")))
	assert.False(t, multi.CanSeeUser(alice, teamUser("carol", domain.RoleStaff, "t2")))
	assert.False(t, multi.CanSeeUser(user("loner", domain.RoleStaff), alice))
	assert.True(t, single.CanSeeUser(user("loner", domain.RoleStaff), alice))
	assert.True(t, multi.CanSeeUser(user("root", domain.RoleSuperAdmin), alice))
}

func TestForbiddenErrorMessage(t *testing.T) {
	assert.Equal(t, "not allowed to delete task", auth.ForbiddenError{Action: "delete task"}.Error())
	assert.Equal(t, "not allowed to mark task done: only admin rank can complete it",
		auth.ForbiddenError{Action: "mark task done", Reason: "only admin rank can complete it"}.Error())
}
