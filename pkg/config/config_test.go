package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-health-ai/lumen-sdk/pkg/config"
)

func TestDefault(t *testing.T) {
	t.Setenv("LUMEN_TENANT_ID", "")
	t.Setenv("LUMEN_MODE", "")
	t.Setenv("LUMEN_DATABASE_PATH", "")
	t.Setenv("LUMEN_LOG_LEVEL", "")

	cfg := config.Default()

	assert.Equal(t, "default", cfg.TenantID)
	assert.Equal(t, "ADVISORY", cfg.Mode)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.DatabasePath)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultEnvOverrides(t *testing.T) {
	t.Setenv("LUMEN_TENANT_ID", "hospital-a")
	t.Setenv("LUMEN_MODE", "GUARDED")
	t.Setenv("LUMEN_DATABASE_PATH", "/var/lib/lumen/audit.db")
	t.Setenv("LUMEN_LOG_LEVEL", "DEBUG")

	cfg := config.Default()

	assert.Equal(t, "hospital-a", cfg.TenantID)
	assert.Equal(t, "GUARDED", cfg.Mode)
	assert.Equal(t, "/var/lib/lumen/audit.db", cfg.DatabasePath)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenant_id: hospital-a
session_id: ward-7
mode: STRICT
packs:
  - ca-on-phipa
  - eu-ai-act
database_path: audit.db
log_level: WARN
`), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hospital-a", cfg.TenantID)
	assert.Equal(t, "ward-7", cfg.SessionID)
	assert.Equal(t, "STRICT", cfg.Mode)
	assert.Equal(t, []string{"ca-on-phipa", "eu-ai-act"}, cfg.Packs)
	assert.Equal(t, "audit.db", cfg.DatabasePath)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()

	write := func(body string) string {
		path := filepath.Join(dir, "cfg.yaml")
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	_, err := config.Load(write("mode: PERMISSIVE\n"))
	assert.ErrorContains(t, err, "unknown mode")

	_, err = config.Load(write("log_level: TRACE\n"))
	assert.ErrorContains(t, err, "unknown log_level")

	_, err = config.Load(write("tenant_id: \"\"\n"))
	assert.ErrorContains(t, err, "tenant_id")

	_, err = config.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
