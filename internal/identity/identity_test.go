package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"teamdesk/internal/db"
	"teamdesk/internal/identity"
	"teamdesk/internal/migrate"
	"teamdesk/internal/repo"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newProvider(t *testing.T) (*identity.Provider, *clock) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	c := &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	p := identity.New(repo.Repo{DB: conn}, "test-secret", time.Hour)
	p.Cost = bcrypt.MinCost
	p.Now = c.now
	return p, c
}

func TestUIDForEmailIsStableAndCaseInsensitive(t *testing.T) {
	assert.Equal(t, identity.UIDForEmail("Root@Example.com "), identity.UIDForEmail("root@example.com"))
	assert.NotEqual(t, identity.UIDForEmail("a@example.com"), identity.UIDForEmail("b@example.com"))
}

func TestSignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)

	var changes []identity.ChangeKind
	unsubscribe := p.OnIdentityChange(func(c identity.Change) { changes = append(changes, c.Kind) })

	s, err := p.SignUp(ctx, "Dev@Example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, identity.UIDForEmail("dev@example.com"), s.UID)
	assert.Equal(t, "dev@example.com", s.Email)

	_, err = p.SignUp(ctx, "dev@example.com", "another1")
	assert.ErrorIs(t, err, identity.ErrEmailTaken)

	_, err = p.SignIn(ctx, "dev@example.com", "wrong-password")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	_, err = p.SignIn(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)

	s, err = p.SignIn(ctx, "dev@example.com", "hunter22")
	require.NoError(t, err)
	claims, err := p.Verify(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, s.UID, claims.UID)

	require.NoError(t, p.SignOut(ctx, s.Token))
	_, err = p.Verify(ctx, s.Token)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	unsubscribe()
	_, err = p.SignIn(ctx, "dev@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, []identity.ChangeKind{identity.SignedUp, identity.SignedIn, identity.SignedOut}, changes)
}

func TestWeakPasswordRejected(t *testing.T) {
	p, _ := newProvider(t)
	_, err := p.SignUp(context.Background(), "a@example.com", "12345")
	assert.ErrorIs(t, err, identity.ErrWeakPassword)
}

func TestTokenExpiresAndRevocationsArePruned(t *testing.T) {
	ctx := context.Background()
	p, c := newProvider(t)
	s, err := p.SignUp(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)
	require.NoError(t, p.SignOut(ctx, s.Token))

	c.t = c.t.Add(2 * time.Hour)
	_, err = p.Verify(ctx, s.Token)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)

	n, err := p.PruneRevoked(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestTokenFromAnotherSecretIsRejected(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)
	s, err := p.SignUp(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)

	other := identity.New(p.Repo, "other-secret", time.Hour)
	other.Now = p.Now
	_, err = other.Verify(ctx, s.Token)
	assert.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	p, _ := newProvider(t)
	_, err := p.SignUp(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)

	assert.ErrorIs(t, p.ChangePassword(ctx, "a@example.com", "nope", "newpass1"), identity.ErrInvalidCredentials)
	require.NoError(t, p.ChangePassword(ctx, "a@example.com", "hunter22", "newpass1"))
	_, err = p.SignIn(ctx, "a@example.com", "newpass1")
	require.NoError(t, err)
}
