package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "blockstats.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "!!pls", cfg.CommandPrefix)
	assert.Equal(t, 10, cfg.TopCount)
	assert.Equal(t, 300, cfg.UpdateInterval)
	assert.True(t, cfg.Debug)

	// The file exists after first load so operators can edit it.
	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, reloaded)
}

func TestLoadAppliesDefaultsForMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blockstats.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"command_prefix": "!!stats"}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "!!stats", cfg.CommandPrefix)
	assert.Equal(t, 10, cfg.TopCount)
	assert.Equal(t, 300, cfg.UpdateInterval)
	assert.False(t, cfg.Debug)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blockstats.json")
	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestInterval(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5*time.Minute, cfg.Interval())
}

func TestServerPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerDir = "/srv/minecraft"

	assert.Equal(t, []string{
		filepath.Join("/srv/minecraft", "world", "stats"),
		filepath.Join("/srv/minecraft", "stats"),
	}, cfg.StatsDirs())
	assert.Equal(t, filepath.Join("/srv/minecraft", "usercache.json"), cfg.UsercachePath())
	assert.Equal(t, filepath.Join("/srv/minecraft", "whitelist.json"), cfg.WhitelistPath())
}
