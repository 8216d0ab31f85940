package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no stray topology.yaml is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) })
	t.Setenv("HOME", dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "topology.sqlite", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
	assert.Equal(t, "table", cfg.Format)
	assert.Empty(t, cfg.ReferenceDir)
	assert.Equal(t, 100, cfg.ErrorThreshold)
}

func TestLoad_ConfigFileInWorkingDir(t *testing.T) {
	dir := chdir(t)
	content := "db_path: /tmp/runs.sqlite\nformat: yaml\nreference_dir: ./numbers\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "topology.yaml"), []byte(content), 0o644))

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/runs.sqlite", cfg.DBPath)
	assert.Equal(t, "yaml", cfg.Format)
	assert.Equal(t, "./numbers", cfg.ReferenceDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("format: yaml\nlog_level: warn\n"), 0o644))
	t.Setenv("TOPOLOGY_FORMAT", "json")

	cfg, err := Load(NewViper(), path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	dir := chdir(t)

	_, err := Load(NewViper(), filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("TOPOLOGY_LOG_LEVEL", "chatty")
	_, err = Load(NewViper(), "")
	assert.ErrorContains(t, err, "log_level")
}

func TestSetupLogging_File(t *testing.T) {
	orig := log.Logger
	origLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = orig
		zerolog.SetGlobalLevel(origLevel)
	})

	path := filepath.Join(t.TempDir(), "topology.log")
	cfg := &Config{LogLevel: "debug", LogFile: path}
	closer, err := cfg.SetupLogging()
	require.NoError(t, err)

	log.Debug().Str("stage", "test").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"test"`)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
