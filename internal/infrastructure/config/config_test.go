package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "blingsync-backend", cfg.App.Name)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 5*time.Minute, cfg.Token.ExpiryBuffer)
	assert.Equal(t, 10*time.Second, cfg.Token.RefreshWait)
	assert.Equal(t, 0.5, cfg.PriceSync.TolerancePct)
	assert.Equal(t, time.Hour, cfg.PriceSync.ConflictLookback)
	assert.Equal(t, 5*time.Minute, cfg.Webhook.Freshness)
	assert.Equal(t, 1000, cfg.Event.QueueSize)
	assert.Equal(t, 2.0, cfg.Jobs.RetryFactor)

	// self-healing loops run unless explicitly switched off
	assert.True(t, cfg.Event.DeadRetryEnabled)
	assert.True(t, cfg.Event.CleanupEnabled)
	assert.True(t, cfg.PriceSync.Enabled)
}

func TestLoad_DeadRetryCanBeDisabled(t *testing.T) {
	t.Setenv("BLINGSYNC_EVENT_DEAD_RETRY_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Event.DeadRetryEnabled)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("BLINGSYNC_APP_PORT", "9090")
	t.Setenv("BLINGSYNC_DATABASE_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	t.Setenv("BLINGSYNC_APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt.secret")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "p@ss word",
		DBName:   "blingsync",
		SSLMode:  "disable",
	}

	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "localhost:5432")
	assert.Contains(t, dsn, "sslmode=disable")
	// password must be escaped
	assert.NotContains(t, dsn, "p@ss word")
}
