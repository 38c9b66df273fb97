package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "./eidetica-data", cfg.DataDir)
	assert.Equal(t, ":7421", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadMissingPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadParsesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "data_dir: /var/lib/eidetica\nlisten_addr: :9999\nsync:\n  device_id: abc123\n  auto_approve_bootstrap: true\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/eidetica", cfg.DataDir)
	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "abc123", cfg.Sync.DeviceID)
	assert.True(t, cfg.Sync.AutoApproveBootstrap)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /from/file\n"), 0o644))

	t.Setenv("EIDETICA_DATA_DIR", "/from/env")
	t.Setenv("EIDETICA_SYNC_DEVICE_ID", "env-device")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.DataDir)
	assert.Equal(t, "env-device", cfg.Sync.DeviceID)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	require.Error(t, err)
}

func TestSyncIntervalEnvOverride(t *testing.T) {
	t.Setenv("EIDETICA_SYNC_INTERVAL_SECONDS", "45")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Sync.SyncIntervalSeconds)

	d, err := cfg.SyncInterval(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)
}

func TestSyncIntervalFallsBackWhenUnset(t *testing.T) {
	cfg := &Config{}
	d, err := cfg.SyncInterval(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
}
