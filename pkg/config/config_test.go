package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, StoreDriverPostgres, cfg.Disputes.StoreDriver)
	assert.Equal(t, 24*time.Hour, cfg.Disputes.ResolutionWindow)
	assert.Equal(t, time.Minute, cfg.Disputes.SweepInterval)
	assert.Equal(t, PointsModeOnCompletion, cfg.Disputes.PointsMode)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DISPUTE_STORE", "MEMORY")
	t.Setenv("DISPUTE_RESOLUTION_WINDOW", "2h")
	t.Setenv("DISPUTE_POINTS_MODE", "on_resolution")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DISPUTE_MEMORY_SEED", " scripts/dispute_smoke/seed.yaml ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverMemory, cfg.Disputes.StoreDriver)
	assert.Equal(t, 2*time.Hour, cfg.Disputes.ResolutionWindow)
	assert.Equal(t, PointsModeOnResolution, cfg.Disputes.PointsMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Len(t, cfg.CORS.AllowedOrigins, 2)
	assert.Equal(t, "scripts/dispute_smoke/seed.yaml", cfg.Disputes.MemorySeed)
}

func TestLoadUnknownValuesFallBack(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DISPUTE_STORE", "sqlite")
	t.Setenv("DISPUTE_POINTS_MODE", "whenever")
	t.Setenv("DISPUTE_SWEEP_INTERVAL", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverPostgres, cfg.Disputes.StoreDriver)
	assert.Equal(t, PointsModeOnCompletion, cfg.Disputes.PointsMode)
	assert.Equal(t, time.Minute, cfg.Disputes.SweepInterval)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
