package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Engine.GraceMinutes)
	assert.Equal(t, 15, cfg.Engine.ReassignThresholdMinutes)
	assert.Equal(t, 32, cfg.Engine.MaxCascade)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)

	assert.Equal(t, 5*time.Minute, cfg.Engine.Grace())
	assert.Equal(t, time.Minute, cfg.Engine.Cadence())
	assert.Equal(t, 15*time.Second, cfg.Engine.SnapshotTTL())
	assert.Equal(t, 2*time.Minute, cfg.Engine.SnapshotFreshness())
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval())
	assert.Equal(t, 24*time.Hour, cfg.Audit.CleanupInterval())
	assert.Equal(t, 30*time.Second, cfg.ServerTimeout())
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jwt secret")
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("ENGINE_GRACE_MINUTES", "10")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Engine.GraceMinutes)
	assert.Equal(t, 10*time.Minute, cfg.Engine.Grace())
	assert.Equal(t, "db.internal", cfg.Database.Host)
}
