package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T, dataDir string) {
	t.Helper()
	t.Setenv("PRESSBOX_DATA_DIR", dataDir)
	t.Setenv("PRESSBOX_CONFIG", filepath.Join(dataDir, "config.yaml"))
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	setBaseEnv(t, dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "127.0.0.1:45119", cfg.HTTPListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10010, cfg.Ports.RangeStart)
	assert.Equal(t, 10999, cfg.Ports.RangeEnd)
	assert.Equal(t, []int{8080, 8888}, cfg.Ports.WellKnown)
	assert.Equal(t, "mysql", cfg.Sites.DatabaseEngine)
	assert.Equal(t, "native", cfg.Sites.Environment)
	assert.Equal(t, "wordpress:php{php}-apache", cfg.Docker.WebImage)
	assert.Equal(t, "nginx:1.27-alpine", cfg.Docker.ProxyImage)
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	setBaseEnv(t, dir)
	t.Setenv("PRESSBOX_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("PRESSBOX_PORT_RANGE_START", "20000")
	t.Setenv("PRESSBOX_PORT_RANGE_END", "20100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9999", cfg.HTTPListenAddr)
	assert.Equal(t, 20000, cfg.Ports.RangeStart)
	assert.Equal(t, 20100, cfg.Ports.RangeEnd)
}

func TestLoad_FileOverlaysEnv(t *testing.T) {
	dir := t.TempDir()
	setBaseEnv(t, dir)

	yaml := "log_level: debug\nsites:\n  php_version: \"8.1\"\nmysql:\n  port: 13306\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "8.1", cfg.Sites.PHPVersion)
	assert.Equal(t, 13306, cfg.MySQL.Port)
	// Untouched fields keep their defaults.
	assert.Equal(t, "latest", cfg.Sites.WordPressVersion)
}

func TestLoad_InvalidPortRange(t *testing.T) {
	dir := t.TempDir()
	setBaseEnv(t, dir)
	t.Setenv("PRESSBOX_PORT_RANGE_START", strconv.Itoa(30000))
	t.Setenv("PRESSBOX_PORT_RANGE_END", strconv.Itoa(20000))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	setBaseEnv(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{not yaml"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestDerivedPaths(t *testing.T) {
	cfg := &Config{DataDir: "/data"}

	assert.Equal(t, filepath.Join("/data", "sites"), cfg.SitesDir())
	assert.Equal(t, filepath.Join("/data", "registry.db"), cfg.RegistryPath())
	assert.Equal(t, filepath.Join("/data", "hosts.backup"), cfg.HostsBackupPath())
	assert.Equal(t, filepath.Join("/data", "dbservers"), cfg.DBServersDir())
}
