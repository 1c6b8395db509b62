package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"teamdesk/internal/config"
	"teamdesk/internal/domain"
	"teamdesk/internal/identity"
	"teamdesk/internal/migrate"
)

func TestOpenWithDefaults(t *testing.T) {
	ws := t.TempDir()
	rt, err := Open(context.Background(), Options{Workspace: ws, Logger: zap.NewNop()})
	require.NoError(t, err)
	defer rt.Close()

	assert.Equal(t, config.TenancySingle, rt.Config.Tenancy)
	v, err := migrate.Version(context.Background(), rt.DB)
	require.NoError(t, err)
	assert.Positive(t, v)

	s, err := rt.Engine.SignUp(context.Background(), "first@example.com", "password1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTrialStaff, s.User.Role)
	claims, err := rt.Identity.Verify(context.Background(), s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.User.UID, claims.UID)
}

func TestOpenReadsWorkspaceConfig(t *testing.T) {
	ws := t.TempDir()
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(strings.Replace(config.GenerateDefault("boss@example.com"), "tenancy: single", "tenancy: multi", 1)), 0o644))
	rt, err := Open(context.Background(), Options{Workspace: ws, Logger: zap.NewNop()})
	require.NoError(t, err)
	defer rt.Close()
	assert.True(t, rt.Config.MultiTeam())
	assert.Equal(t, "boss@example.com", rt.Config.Auth.SuperAdminEmail)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	ws := t.TempDir()
	path := filepath.Join(ws, "custom.yml")
	require.NoError(t, os.WriteFile(path, []byte("tenancy: galaxy\n"), 0o644))
	_, err := Open(context.Background(), Options{Workspace: ws, ConfigPath: path, Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestResolveSecret(t *testing.T) {
	ws := t.TempDir()
	s, err := ResolveSecret(ws, " given ")
	require.NoError(t, err)
	assert.Equal(t, "given", s)

	first, err := ResolveSecret(ws, "")
	require.NoError(t, err)
	assert.Len(t, first, 64)
	again, err := ResolveSecret(ws, "")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestRuntimeLogsIdentityChanges(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	rt, err := Open(context.Background(), Options{Workspace: t.TempDir(), Logger: zap.New(core)})
	require.NoError(t, err)
	defer rt.Close()
	ctx := context.Background()

	_, err = rt.Engine.SignUp(ctx, "first@example.com", "password1", "")
	require.NoError(t, err)
	s, err := rt.Engine.SignIn(ctx, "first@example.com", "password1")
	require.NoError(t, err)
	require.NoError(t, rt.Engine.SignOut(ctx, s.Token))

	var kinds []string
	for _, e := range logs.FilterMessage("identity").All() {
		kinds = append(kinds, e.ContextMap()["kind"].(string))
	}
	assert.Equal(t, []string{string(identity.SignedUp), string(identity.SignedIn), string(identity.SignedOut)}, kinds)
}
