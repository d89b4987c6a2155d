package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	m, err := NewManager(path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, path, m.GetConfigPath())

	cfg := m.Get()
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"wmctrl", "-l"}, cfg.Fallback.Command)
	assert.Equal(t, 10*time.Second, cfg.Server.CaptureTimeout)
	assert.Equal(t, 128, cfg.Accessibility.MaxDepth)
	assert.True(t, cfg.Fallback.EWMH)
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "server_port: 9999\nserver:\n  capture_timeout: 3s\naccessibility:\n  max_depth: 0\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	m, err := NewManager(path)
	require.NoError(t, err)

	cfg := m.Get()
	assert.Equal(t, 9999, cfg.ServerPort)
	assert.Equal(t, 3*time.Second, cfg.Server.CaptureTimeout)
	assert.Equal(t, 8, cfg.Server.MaxConcurrent)
	assert.Equal(t, 0, cfg.Accessibility.MaxDepth)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Fallback.EWMH, "unset keys keep their defaults")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_port: [oops"), 0644))

	_, err := NewManager(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestSetPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	m, err := NewManager(path)
	require.NoError(t, err)

	require.NoError(t, m.Set("server.capture_timeout", "2s"))
	require.NoError(t, m.Set("fallback.command", "xdotool search --name ."))
	require.NoError(t, m.SetPort(7000))
	require.NoError(t, m.SetLogLevel("DEBUG"))
	require.NoError(t, m.Set("fallback.ewmh", "false"))

	reloaded, err := NewManager(path)
	require.NoError(t, err)
	cfg := reloaded.Get()
	assert.Equal(t, 2*time.Second, cfg.Server.CaptureTimeout)
	assert.Equal(t, []string{"xdotool", "search", "--name", "."}, cfg.Fallback.Command)
	assert.Equal(t, 7000, cfg.ServerPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.Fallback.EWMH)

	v, err := reloaded.Value("server.capture_timeout")
	require.NoError(t, err)
	assert.Equal(t, "2s", v)
}

func TestSetRejectsBadValues(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	assert.Error(t, m.Set("server_port", "70000"))
	assert.Error(t, m.Set("log_level", "loud"))
	assert.Error(t, m.Set("fallback.command", "   "))
	assert.Error(t, m.Set("server.max_concurrent", "0"))
	assert.Error(t, m.Set("nope", "1"))

	_, err = m.Value("nope")
	assert.Error(t, err)

	assert.Equal(t, 8080, m.Get().ServerPort)
}

func TestGetReturnsCopy(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)

	cfg := m.Get()
	cfg.ServerPort = 1
	cfg.Fallback.Command[0] = "mutated"

	fresh := m.Get()
	assert.Equal(t, 8080, fresh.ServerPort)
	assert.Equal(t, "wmctrl", fresh.Fallback.Command[0])
}

func TestKeysSorted(t *testing.T) {
	keys := Keys()
	assert.IsIncreasing(t, keys)
	assert.Contains(t, keys, "accessibility.max_depth")
}
