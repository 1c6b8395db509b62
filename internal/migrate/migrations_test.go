package migrate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/internal/db"
	"teamdesk/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()

	v, err := migrate.Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, migrate.Migrate(conn))
	require.NoError(t, migrate.MigrateContext(ctx, conn))

	v, err = migrate.Version(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for _, table := range []string{"users", "tasks", "task_assignees", "task_comments", "milestones", "teams", "events", "api_keys", "credentials"} {
		var name string
		err := conn.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}
}

func TestVersionReportsReadFailures(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))
	require.NoError(t, conn.Close())

	_, err = migrate.Version(ctx, conn)
	assert.Error(t, err)
}
