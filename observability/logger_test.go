package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/m4xw311/playtest/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.Logging{Level: "debug", Format: "json"}, zapcore.AddSync(&buf))
	logger.Named("agent").Debug("step", zap.Int("index", 2))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "DEBUG", entry["level"])
	assert.Equal(t, "agent", entry["logger"])
	assert.Equal(t, "step", entry["msg"])
	assert.EqualValues(t, 2, entry["index"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.Logging{Level: "warn", Format: "console"}, zapcore.AddSync(&buf))
	logger.Info("hidden")
	logger.Warn("shown")
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := New(config.Logging{Level: "chatty", Format: "json"}, zapcore.AddSync(&buf))
	logger.Debug("hidden")
	logger.Info("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "playtest.log")
	logger := New(config.Logging{Level: "info", Format: "console", File: path, MaxSizeMB: 1}, Discard)
	logger.Info("to file", zap.String("k", "v"))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Equal(t, "to file", entry["msg"])
	assert.Equal(t, "v", entry["k"])
}
