package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/internal/config"
	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/repo"
)

func multiTeam(c *config.Config) { c.Tenancy = config.TenancyMulti }

func strPtr(s string) *string { return &s }

func TestActiveMilestone(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.SetActiveMilestone(env.Ctx, engine.MilestoneOptions{ActorID: env.Admin.UID, Title: strPtr("Mine now")})
	requireForbidden(t, err)

	progress := 150
	m, err := env.Engine.SetActiveMilestone(env.Ctx, engine.MilestoneOptions{ActorID: env.Root.UID, Progress: &progress})
	require.NoError(t, err)
	assert.Equal(t, "Launch", m.Title)
	assert.Equal(t, 100, m.Progress)
	assert.Equal(t, domain.ActiveMilestoneID, m.ID)

	_, err = env.Engine.SetActiveMilestone(env.Ctx, engine.MilestoneOptions{ActorID: env.Root.UID, Title: strPtr(" ")})
	requireValidation(t, err, "title")

	_, err = env.Engine.CreateMilestone(env.Ctx, engine.MilestoneOptions{ActorID: env.Root.UID, Title: strPtr("Sprint")})
	requireValidation(t, err, "tenancy")

	completed := domain.MilestoneCompleted
	_, err = env.Engine.UpdateMilestone(env.Ctx, domain.ActiveMilestoneID, engine.MilestoneOptions{ActorID: env.Root.UID, Status: &completed})
	require.NoError(t, err)
	_, err = env.Engine.CreateTask(env.Ctx, engine.TaskCreateOptions{ActorID: env.Admin.UID, Title: "late", AssignedUserIDs: []string{env.Staff.UID}})
	requireValidation(t, err, "milestoneId")

	stored, err := env.Engine.ActiveMilestone(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.MilestoneCompleted, stored.Status)
	assert.Equal(t, env.Root.UID, stored.CreatedBy)
}

func TestTeamsAndScopedMilestones(t *testing.T) {
	env := newTestEnv(t, withConfig(multiTeam))
	ctx := env.Ctx

	_, err := env.Engine.SetActiveMilestone(ctx, engine.MilestoneOptions{ActorID: env.Root.UID, Title: strPtr("x")})
	requireValidation(t, err, "tenancy")

	_, err = env.Engine.CreateTeam(ctx, env.Admin.UID, "Core", "")
	requireForbidden(t, err)
	_, err = env.Engine.CreateTeam(ctx, env.Root.UID, "Core", env.Dev.UID)
	requireValidation(t, err, "adminUid")

	core, err := env.Engine.CreateTeam(ctx, env.Root.UID, "Core", env.Admin.UID)
	require.NoError(t, err)
	assert.Equal(t, []string{env.Admin.UID}, core.Members)
	other, err := env.Engine.CreateTeam(ctx, env.Root.UID, "Other", "")
	require.NoError(t, err)

	team, err := env.Engine.AddTeamMember(ctx, env.Admin.UID, core.ID, env.Staff.UID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{env.Admin.UID, env.Staff.UID}, team.Members)

	_, err = env.Engine.AddTeamMember(ctx, env.Admin.UID, core.ID, env.Dev.UID)
	requireForbidden(t, err)
	_, err = env.Engine.AddTeamMember(ctx, env.Admin.UID, other.ID, env.Trial.UID)
	requireForbidden(t, err)

	sprint, err := env.Engine.CreateMilestone(ctx, engine.MilestoneOptions{ActorID: env.Admin.UID, Title: strPtr("Sprint 1")})
	require.NoError(t, err)
	assert.Equal(t, domain.MilestonePending, sprint.Status)
	require.NotNil(t, sprint.TeamID)
	assert.Equal(t, core.ID, *sprint.TeamID)

	foreign, err := env.Engine.CreateMilestone(ctx, engine.MilestoneOptions{ActorID: env.Root.UID, TeamID: other.ID, Title: strPtr("Elsewhere")})
	require.NoError(t, err)
	_, err = env.Engine.UpdateMilestone(ctx, foreign.ID, engine.MilestoneOptions{ActorID: env.Admin.UID, Title: strPtr("Taken")})
	requireForbidden(t, err)

	_, err = env.Engine.CreateTask(ctx, engine.TaskCreateOptions{ActorID: env.Admin.UID, Title: "x", MilestoneID: foreign.ID, AssignedUserIDs: []string{env.Staff.UID}})
	requireValidation(t, err, "milestoneId")

	assignable, err := env.Engine.AssignableUsers(ctx, env.Admin.UID)
	require.NoError(t, err)
	require.Len(t, assignable, 1)
	assert.Equal(t, env.Staff.UID, assignable[0].UID)

	_, err = env.Engine.CreateTask(ctx, engine.TaskCreateOptions{ActorID: env.Admin.UID, Title: "x", MilestoneID: sprint.ID, AssignedUserIDs: []string{env.Trial.UID}})
	requireForbidden(t, err)
	task := env.task(t, env.Admin, engine.TaskCreateOptions{MilestoneID: sprint.ID, AssignedUserIDs: []string{env.Staff.UID}})
	rootTask := env.task(t, env.Root, engine.TaskCreateOptions{MilestoneID: foreign.ID, AssignedRole: domain.RoleStaff})

	ms, err := env.Engine.ListMilestones(ctx, env.Staff.UID)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, sprint.ID, ms[0].ID)

	ms, err = env.Engine.ListMilestones(ctx, env.Trial.UID)
	require.NoError(t, err)
	assert.Empty(t, ms)

	ms, err = env.Engine.ListMilestones(ctx, env.Root.UID)
	require.NoError(t, err)
	assert.Len(t, ms, 2)

	v, err := env.Engine.TaskViews(ctx, env.Staff.UID)
	require.NoError(t, err)
	assert.Equal(t, []string{task.ID}, taskIDs(v.Mine))

	v, err = env.Engine.TaskViews(ctx, env.Root.UID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{task.ID, rootTask.ID}, taskIDs(v.Subordinates))

	teams, err := env.Engine.ListTeams(ctx)
	require.NoError(t, err)
	assert.Len(t, teams, 2)

	staff, err := env.Engine.GetUser(ctx, env.Staff.UID)
	require.NoError(t, err)
	require.NotNil(t, staff.TeamID)
	assert.Equal(t, core.ID, *staff.TeamID)
}

func TestManagedUsersJoinCreatorTeam(t *testing.T) {
	env := newTestEnv(t, withConfig(multiTeam))
	core, err := env.Engine.CreateTeam(env.Ctx, env.Root.UID, "Core", env.Admin.UID)
	require.NoError(t, err)

	admin, err := env.Engine.GetUser(env.Ctx, env.Admin.UID)
	require.NoError(t, err)
	u, err := env.Engine.CreateManagedUser(env.Ctx, engine.ManagedUserOptions{
		ActorID:  admin.UID,
		Email:    "hire@example.com",
		Password: "password1",
		Role:     domain.RoleStaff,
		TeamID:   "somewhere-else",
	})
	require.NoError(t, err)
	require.NotNil(t, u.TeamID)
	assert.Equal(t, core.ID, *u.TeamID)

	team, err := env.Engine.Repo.GetTeam(env.Ctx, core.ID)
	require.NoError(t, err)
	assert.Contains(t, team.Members, u.UID)

	_, err = env.Engine.CreateManagedUser(env.Ctx, engine.ManagedUserOptions{
		ActorID:  env.Root.UID,
		Email:    "lost@example.com",
		Password: "password1",
		Role:     domain.RoleStaff,
		TeamID:   "no-such-team",
	})
	requireValidation(t, err, "teamId")
}

func TestTeamScopeCoversSingleTasks(t *testing.T) {
	env := newTestEnv(t, withConfig(multiTeam))
	ctx := env.Ctx

	core, err := env.Engine.CreateTeam(ctx, env.Root.UID, "Core", env.Admin.UID)
	require.NoError(t, err)
	_, err = env.Engine.AddTeamMember(ctx, env.Admin.UID, core.ID, env.Staff.UID)
	require.NoError(t, err)
	other, err := env.Engine.CreateTeam(ctx, env.Root.UID, "Other", "")
	require.NoError(t, err)

	sprint, err := env.Engine.CreateMilestone(ctx, engine.MilestoneOptions{ActorID: env.Admin.UID, Title: strPtr("Sprint 1")})
	require.NoError(t, err)
	elsewhere, err := env.Engine.CreateMilestone(ctx, engine.MilestoneOptions{ActorID: env.Root.UID, TeamID: other.ID, Title: strPtr("Elsewhere")})
	require.NoError(t, err)

	home := env.task(t, env.Admin, engine.TaskCreateOptions{MilestoneID: sprint.ID, AssignedRole: domain.RoleStaff})
	foreign := env.task(t, env.Root, engine.TaskCreateOptions{MilestoneID: elsewhere.ID, AssignedRole: domain.RoleStaff})

	tasks, err := env.Engine.ListTasksFor(ctx, env.Staff.UID, repo.TaskFilters{MilestoneIDs: []string{elsewhere.ID}})
	require.NoError(t, err)
	assert.Empty(t, tasks)

	_, err = env.Engine.TaskFor(ctx, env.Staff.UID, foreign.ID)
	requireForbidden(t, err)
	_, err = env.Engine.CommentsFor(ctx, env.Staff.UID, foreign.ID)
	requireForbidden(t, err)
	_, err = env.Engine.ChangeTaskStatus(ctx, engine.TaskStatusOptions{ActorID: env.Staff.UID, TaskID: foreign.ID, Status: domain.StatusReview})
	requireForbidden(t, err)
	_, err = env.Engine.AddComment(ctx, env.Trial.UID, foreign.ID, "hello")
	requireForbidden(t, err)
	requireForbidden(t, env.Engine.DeleteTask(ctx, env.Admin.UID, foreign.ID))

	stored, err := env.Engine.GetTask(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTodo, stored.Status)
	comments, err := env.Engine.ListComments(ctx, foreign.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	got, err := env.Engine.TaskFor(ctx, env.Staff.UID, home.ID)
	require.NoError(t, err)
	assert.Equal(t, home.ID, got.ID)
	_, err = env.Engine.ChangeTaskStatus(ctx, engine.TaskStatusOptions{ActorID: env.Staff.UID, TaskID: home.ID, Status: domain.StatusReview})
	require.NoError(t, err)
	_, err = env.Engine.AddComment(ctx, env.Staff.UID, home.ID, "ready")
	require.NoError(t, err)
	_, err = env.Engine.TaskFor(ctx, env.Staff.UID, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.SummarizeMilestone(ctx, env.Staff.UID, elsewhere.ID)
	requireForbidden(t, err)
	sum, err := env.Engine.SummarizeMilestone(ctx, env.Staff.UID, sprint.ID)
	require.NoError(t, err)
	assert.Equal(t, map[domain.TaskStatus]int{domain.StatusReview: 1}, sum.Counts)

	got, err = env.Engine.TaskFor(ctx, env.Root.UID, foreign.ID)
	require.NoError(t, err)
	assert.Equal(t, foreign.ID, got.ID)
	_, err = env.Engine.AddComment(ctx, env.Root.UID, foreign.ID, "checked")
	require.NoError(t, err)
}

func TestTeamScopeCoversUsers(t *testing.T) {
	env := newTestEnv(t, withConfig(multiTeam))
	ctx := env.Ctx

	core, err := env.Engine.CreateTeam(ctx, env.Root.UID, "Core", env.Admin.UID)
	require.NoError(t, err)
	_, err = env.Engine.AddTeamMember(ctx, env.Admin.UID, core.ID, env.Staff.UID)
	require.NoError(t, err)

	users, err := env.Engine.ListUsersFor(ctx, env.Staff.UID, repo.UserFilters{})
	require.NoError(t, err)
	var uids []string
	for _, u := range users {
		uids = append(uids, u.UID)
	}
	assert.ElementsMatch(t, []string{env.Admin.UID, env.Staff.UID}, uids)

	users, err = env.Engine.ListUsersFor(ctx, env.Trial.UID, repo.UserFilters{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, env.Trial.UID, users[0].UID)

	users, err = env.Engine.ListUsersFor(ctx, env.Root.UID, repo.UserFilters{})
	require.NoError(t, err)
	assert.Len(t, users, 5)

	_, err = env.Engine.UserFor(ctx, env.Staff.UID, env.Dev.UID)
	requireForbidden(t, err)
	u, err := env.Engine.UserFor(ctx, env.Staff.UID, env.Admin.UID)
	require.NoError(t, err)
	assert.Equal(t, env.Admin.UID, u.UID)
	_, err = env.Engine.UserFor(ctx, env.Staff.UID, "nobody")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
