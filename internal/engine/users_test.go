package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/internal/domain"
	"teamdesk/internal/engine"
	"teamdesk/internal/identity"
	"teamdesk/internal/repo"
)

func TestSuperAdminBootstrapsOnFirstSignIn(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.DB.ExecContext(env.Ctx, `DELETE FROM users WHERE uid=?`, env.Root.UID)
	require.NoError(t, err)

	s, err := env.Engine.SignIn(env.Ctx, rootEmail, "password1")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperAdmin, s.User.Role)
	assert.Equal(t, domain.UserActive, s.User.Status)
	assert.NotEmpty(t, s.Token)

	stored, err := env.Engine.GetUser(env.Ctx, env.Root.UID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleSuperAdmin, stored.Role)
}

func TestSignInWithoutProfileIsRefused(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Identity.SignUp(env.Ctx, "ghost@example.com", "password1")
	require.NoError(t, err)

	_, err = env.Engine.SignIn(env.Ctx, "ghost@example.com", "password1")
	requireForbidden(t, err)
}

func TestSignInRefusesInactiveAccounts(t *testing.T) {
	env := newTestEnv(t)
	for _, status := range []domain.UserStatus{domain.UserBanned, domain.UserTimeout} {
		_, err := env.Engine.SetUserStatus(env.Ctx, env.Admin.UID, env.Staff.UID, status)
		require.NoError(t, err)

		_, err = env.Engine.SignIn(env.Ctx, "staff@example.com", "password1")
		fe := requireForbidden(t, err)
		assert.Equal(t, "account is "+string(status), fe.Reason)
	}

	_, err := env.Engine.SetUserStatus(env.Ctx, env.Admin.UID, env.Staff.UID, domain.UserActive)
	require.NoError(t, err)
	_, err = env.Engine.SignIn(env.Ctx, "staff@example.com", "password1")
	require.NoError(t, err)
}

func TestSignInWithWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SignIn(env.Ctx, "staff@example.com", "nope-nope")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestSelfSignUpIsTrialStaff(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, domain.RoleTrialStaff, env.Trial.Role)

	s, err := env.Engine.SignUp(env.Ctx, "new.hire@example.com", "password1", "")
	require.NoError(t, err)
	assert.Equal(t, "new.hire", s.User.DisplayName)

	_, err = env.Engine.SignUp(env.Ctx, "not-an-email", "password1", "x")
	requireValidation(t, err, "email")
	_, err = env.Engine.SignUp(env.Ctx, "short@example.com", "123", "x")
	requireValidation(t, err, "password")
	_, err = env.Engine.SignUp(env.Ctx, "new.hire@example.com", "password1", "again")
	assert.ErrorIs(t, err, identity.ErrEmailTaken)
}

func TestSignOutRevokesSession(t *testing.T) {
	env := newTestEnv(t)
	s, err := env.Engine.SignIn(env.Ctx, "dev@example.com", "password1")
	require.NoError(t, err)
	require.NoError(t, env.Engine.SignOut(env.Ctx, s.Token))
	_, err = env.Identity.Verify(env.Ctx, s.Token)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestCreateManagedUserLimitedToAssignableRoles(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		creator domain.User
		role    domain.Role
		allowed bool
	}{
		{env.Admin, domain.RoleStaff, true},
		{env.Admin, domain.RoleDeveloper, false},
		{env.Admin, domain.RoleAdmin, false},
		{env.Dev, domain.RoleTrialStaff, true},
		{env.Dev, domain.RoleStaff, false},
		{env.Staff, domain.RoleTrialStaff, true},
		{env.Trial, domain.RoleTrialStaff, false},
		{env.Root, domain.RoleSuperAdmin, true},
	}
	for i, tc := range cases {
		_, err := env.Engine.CreateManagedUser(env.Ctx, engine.ManagedUserOptions{
			ActorID:  tc.creator.UID,
			Email:    string(rune('a'+i)) + "-managed@example.com",
			Password: "password1",
			Role:     tc.role,
		})
		if tc.allowed {
			assert.NoError(t, err, "%s creating %s", tc.creator.Role, tc.role)
		} else {
			requireForbidden(t, err)
		}
	}

	_, err := env.Engine.CreateManagedUser(env.Ctx, engine.ManagedUserOptions{ActorID: env.Root.UID, Email: "x@example.com", Password: "password1", Role: "owner"})
	requireValidation(t, err, "role")
}

func TestSetUserRole(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.SetUserRole(env.Ctx, env.Root.UID, env.Root.UID, domain.RoleAdmin)
	fe := requireForbidden(t, err)
	assert.Contains(t, fe.Reason, "super admin")

	u, err := env.Engine.SetUserRole(env.Ctx, env.Admin.UID, env.Trial.UID, domain.RoleStaff)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStaff, u.Role)

	_, err = env.Engine.SetUserRole(env.Ctx, env.Admin.UID, env.Dev.UID, domain.RoleStaff)
	requireForbidden(t, err)
	_, err = env.Engine.SetUserRole(env.Ctx, env.Admin.UID, env.Staff.UID, domain.RoleDeveloper)
	requireForbidden(t, err)
	_, err = env.Engine.SetUserRole(env.Ctx, env.Dev.UID, env.Staff.UID, domain.RoleTrialStaff)
	requireForbidden(t, err)

	u, err = env.Engine.SetUserRole(env.Ctx, env.Root.UID, env.Dev.UID, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, u.Role)

	_, err = env.Engine.SetUserRole(env.Ctx, env.Root.UID, "missing", domain.RoleAdmin)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.SetUserRole(env.Ctx, env.Root.UID, env.Dev.UID, "boss")
	requireValidation(t, err, "role")
}

func TestSetUserStatus(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.Engine.SetUserStatus(env.Ctx, env.Admin.UID, env.Root.UID, domain.UserBanned)
	fe := requireForbidden(t, err)
	assert.Contains(t, fe.Reason, "super admin")

	_, err = env.Engine.SetUserStatus(env.Ctx, env.Dev.UID, env.Trial.UID, domain.UserBanned)
	requireForbidden(t, err)

	u, err := env.Engine.SetUserStatus(env.Ctx, env.Admin.UID, env.Dev.UID, domain.UserTimeout)
	require.NoError(t, err)
	assert.Equal(t, domain.UserTimeout, u.Status)

	// a timed-out user can no longer act
	_, err = env.Engine.AddComment(env.Ctx, env.Dev.UID, "whatever", "hello")
	requireForbidden(t, err)

	_, err = env.Engine.SetUserStatus(env.Ctx, env.Admin.UID, env.Dev.UID, "frozen")
	requireValidation(t, err, "status")
}

func TestAssignableUsers(t *testing.T) {
	env := newTestEnv(t)
	users, err := env.Engine.AssignableUsers(env.Ctx, env.Admin.UID)
	require.NoError(t, err)
	var uids []string
	for _, u := range users {
		uids = append(uids, u.UID)
	}
	assert.ElementsMatch(t, []string{env.Staff.UID, env.Trial.UID}, uids)

	users, err = env.Engine.AssignableUsers(env.Ctx, env.Trial.UID)
	require.NoError(t, err)
	assert.Empty(t, users)

	users, err = env.Engine.AssignableUsers(env.Ctx, env.Root.UID)
	require.NoError(t, err)
	assert.Len(t, users, 5)
}

func TestProfileUpdates(t *testing.T) {
	env := newTestEnv(t)
	u, err := env.Engine.UpdateDisplayName(env.Ctx, env.Staff.UID, "  Sam  ")
	require.NoError(t, err)
	assert.Equal(t, "Sam", u.DisplayName)

	_, err = env.Engine.UpdateDisplayName(env.Ctx, env.Staff.UID, " ")
	requireValidation(t, err, "displayName")

	require.NoError(t, env.Engine.ChangePassword(env.Ctx, env.Staff.UID, "password1", "password2"))
	_, err = env.Engine.SignIn(env.Ctx, "staff@example.com", "password2")
	require.NoError(t, err)
	requireValidation(t, env.Engine.ChangePassword(env.Ctx, env.Staff.UID, "password2", "x"), "newPassword")
}

func TestCapabilities(t *testing.T) {
	env := newTestEnv(t)
	c := env.Engine.Capabilities(env.Root)
	assert.True(t, c.IsSuperAdmin)
	assert.True(t, c.CanCreateTask)
	assert.Len(t, c.AssignableRoles, 5)

	c = env.Engine.Capabilities(env.Trial)
	assert.False(t, c.CanCreateTask)
	assert.False(t, c.CanManageUsers)
	assert.Empty(t, c.AssignableRoles)
}
