package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rsstoot/config"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rsstoot.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
database = "/var/lib/rsstoot/rsstoot.db"
port = 8080
public_url = "https://rsstoot.example"
interval_minutes = 15
admin_user = "ops"
admin_password = "secret"
`), 0o600))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/rsstoot/rsstoot.db", cfg.Database)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "https://rsstoot.example", cfg.PublicURL)
	assert.Equal(t, 15, cfg.IntervalMinutes)
	assert.Equal(t, "ops", cfg.AdminUser)
	assert.Equal(t, "secret", cfg.AdminPassword)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = = 1"), 0o600))

	_, err := config.LoadConfig(path)
	assert.Error(t, err)
}
