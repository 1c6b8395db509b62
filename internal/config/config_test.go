package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.TenancySingle, cfg.Tenancy)
	assert.Equal(t, "assigner_role", cfg.Policies.Completion)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 2*time.Second, cfg.Feed.PollInterval)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.False(t, cfg.MultiTeam())
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
tenancy: multi
policies:
  completion: min_rank
webhooks:
  - url: http://localhost:9000/hook
    events: [task.created]
`))
	require.NoError(t, err)
	assert.True(t, cfg.MultiTeam())
	assert.Equal(t, "min_rank", cfg.Policies.Completion)
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
	require.Len(t, cfg.Webhooks, 1)
	assert.True(t, cfg.Webhooks[0].IsEnabled())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"tenancy":    "tenancy: galaxy\n",
		"completion": "policies:\n  completion: anyone\n",
		"webhook":    "webhooks:\n  - events: [x]\n",
		"base path":  "server:\n  base_path: v0\n",
		"log format": "log:\n  format: xml\n",
	}
	for name, doc := range cases {
		_, err := config.FromYAML([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	_, err = config.Load(dir)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "teamdesk.yml"), []byte(config.GenerateDefault("root@example.com")), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", cfg.Auth.SuperAdminEmail)
}
