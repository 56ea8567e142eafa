package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SUPPORT_DATABASE_URL", "postgres://localhost:5432/support")
	t.Setenv("SUPPORT_LLM_BASE_URL", "https://llm.example.com/v1")
	t.Setenv("SUPPORT_APPROVAL_WEBHOOK_URL", "https://hooks.example.com/approval")
	t.Setenv("SUPPORT_NOTIFY_WEBHOOK_URL", "https://hooks.example.com/notify")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Engine.MaxAutoFixAttempts)
	assert.Equal(t, 30*time.Minute, cfg.Engine.EscalationCooldown)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 30*time.Minute, cfg.Approval.WaitTimeout)
	assert.Equal(t, 5*time.Second, cfg.Approval.PollInterval)
	assert.True(t, cfg.Drift.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  addr: ":9000"
log:
  level: debug
  format: text
engine:
  max_auto_fix_attempts: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5, cfg.Engine.MaxAutoFixAttempts)
	// untouched sections keep defaults
	assert.Equal(t, ":9090", cfg.Server.MetricsAddr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUPPORT_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvKeyMapping(t *testing.T) {
	// Only the first underscore splits section from key; the rest belong
	// to the key itself.
	setRequiredEnv(t)
	t.Setenv("SUPPORT_DATABASE_MAX_OPEN_CONNS", "42")
	t.Setenv("SUPPORT_ENGINE_MAX_AUTO_FIX_ATTEMPTS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Database.MaxOpenConns)
	assert.Equal(t, 7, cfg.Engine.MaxAutoFixAttempts)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadValidation(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validate config")
	})

	t.Run("malformed webhook url", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("SUPPORT_NOTIFY_WEBHOOK_URL", "not a url")

		_, err := Load("")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validate config")
	})
}

func TestLoadEmptyWebhookURLsAllowed(t *testing.T) {
	// An unset webhook URL means the sender runs disabled, it is not a
	// configuration error.
	t.Setenv("SUPPORT_DATABASE_URL", "postgres://localhost:5432/support")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Approval.WebhookURL)
	assert.Empty(t, cfg.Notify.WebhookURL)
}

func TestLoadInvalidLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUPPORT_LOG_LEVEL", "verbose")

	_, err := Load("")
	require.Error(t, err)
}
