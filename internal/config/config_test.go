package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, Defaults().Worker.SourcePath, cfg.Worker.SourcePath)
	require.Equal(t, 6.0, cfg.Heartbeat.TimeoutSec)
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
heartbeat_interval_sec = 2.5
heartbeat_timeout_sec = 3

[evolution]
seed = 7

[worker]
source_path = "ring2"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2.5, cfg.Heartbeat.IntervalSec)
	require.Equal(t, 3.0, cfg.Heartbeat.TimeoutSec)
	require.Equal(t, int64(7), cfg.Evolution.Seed)
	require.Equal(t, "ring2", cfg.Worker.SourcePath)
}

func TestLoadDotEnvDoesNotOverrideExistingEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ANTHROPIC_API_KEY=from-dotenv\n"), 0o644))
	t.Setenv("ANTHROPIC_API_KEY", "from-environment")

	cfg, err := Load(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	require.Equal(t, "from-environment", cfg.LLM.APIKey)
}

func TestValidateRejectsEmptyPaths(t *testing.T) {
	cfg := Defaults()
	cfg.Worker.SourcePath = ""
	require.Error(t, cfg.Validate())
}
