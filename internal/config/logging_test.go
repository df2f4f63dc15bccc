package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFansOut(t *testing.T) {
	var console, file bytes.Buffer
	logger := newLogger(&console, &file, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("job completed", "job_id", "abc123")

	assert.Contains(t, console.String(), "msg=\"job completed\" job_id=abc123")
	assert.NotContains(t, console.String(), "hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(file.Bytes(), &entry))
	assert.Equal(t, "job completed", entry["msg"])
	assert.Equal(t, "abc123", entry["job_id"])
}

func TestNewLoggerConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	newLogger(&console, nil, slog.LevelDebug).Debug("poll", "n", 3)
	assert.Contains(t, console.String(), "level=DEBUG msg=poll n=3")
}

func TestSetupLoggerWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, closeFn := SetupLogger(path, slog.LevelWarn)
	logger.Warn("stale reset", "status", "reasoning")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "reasoning", entry["status"])
}
