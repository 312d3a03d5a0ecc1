package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "markets.db", cfg.DatabasePath)
	assert.Equal(t, []string{"A"}, cfg.Assets)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
http_addr: ":9090"
database_path: "custom.db"
log_level: debug
assets:
  - GOLD
  - SILVER
traders:
  - api_key: key-1
    api_secret: secret-1
    trader_code: alice
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "custom.db", cfg.DatabasePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"GOLD", "SILVER"}, cfg.Assets)
	require.Len(t, cfg.Traders, 1)
	assert.Equal(t, "alice", cfg.Traders[0].TraderCode)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("DATABASE_PATH", "env.db")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, "env.db", cfg.DatabasePath)
	assert.Equal(t, "env-secret", cfg.JWTSecret)
}

func TestRejectsEmptyAssets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("assets: []\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}
