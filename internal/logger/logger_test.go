package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"teamdesk/internal/config"
	"teamdesk/internal/logger"
)

func TestParseLevel(t *testing.T) {
	lvl, err := logger.ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lvl)

	lvl, err = logger.ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	_, err = logger.ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewWritesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamdesk.log")
	log, err := logger.New(config.Log{Level: "debug", File: path})
	require.NoError(t, err)

	log.Debug("task created", zap.String("task_id", "t1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"task created"`)
	assert.Contains(t, string(data), `"task_id":"t1"`)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := logger.New(config.Log{Level: "chatty"})
	assert.Error(t, err)
}
