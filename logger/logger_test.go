package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"vcrkit/config"
)

func TestNewJSONLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := New(config.LoggingConfig{Level: "info", Format: "json"}, zapcore.AddSync(buf))
	require.NoError(t, err)

	l.Info("sanitized fixture", zap.String("path", "a.json"))
	l.Debug("hidden")
	require.NoError(t, l.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "sanitized fixture", entry["msg"])
	assert.Equal(t, "a.json", entry["path"])
	assert.Equal(t, "vcrkit", entry["logger"])
}

func TestNewConsoleLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	l, err := New(config.LoggingConfig{Level: "debug", Format: "console"}, zapcore.AddSync(buf))
	require.NoError(t, err)

	l.Debug("discovery finished")
	assert.Contains(t, buf.String(), "DEBUG")
	assert.Contains(t, buf.String(), "discovery finished")
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"}, zapcore.AddSync(new(bytes.Buffer)))
	assert.Error(t, err)
}

func TestFileCore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vcrkit.log")
	l, err := New(config.LoggingConfig{Level: "info", File: path, MaxSize: 1}, zapcore.AddSync(new(bytes.Buffer)))
	require.NoError(t, err)

	l.Warn("written to file")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestGlobalFallback(t *testing.T) {
	global.Store(nil)
	assert.NotNil(t, L())
	assert.NotNil(t, OrNop(nil))

	l := zap.NewNop()
	Init(l)
	assert.Same(t, l, L())
}
