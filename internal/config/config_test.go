package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, "courier-locations", cfg.KafkaTopic)
	require.Equal(t, 10.0, cfg.MatchRadiusKm)
	require.Equal(t, 2*time.Minute, cfg.SampleFreshness)
	require.Equal(t, 10*time.Second, cfg.InitTimeout)
	require.Equal(t, 5*time.Second, cfg.InitCooldown)
	require.Equal(t, 3, cfg.InitAttempts)
	require.False(t, cfg.RunMigrations)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092 ,")
	t.Setenv("MATCH_RADIUS_KM", "3.5")
	t.Setenv("SAMPLE_FRESHNESS", "30s")
	t.Setenv("MIGRATE", "TRUE")

	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.HTTPAddr)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 3.5, cfg.MatchRadiusKm)
	require.Equal(t, 30*time.Second, cfg.SampleFreshness)
	require.True(t, cfg.RunMigrations)
}

func TestInvalidValuesJoinErrors(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")
	t.Setenv("INIT_ATTEMPTS", "zero")
	t.Setenv("MATCH_RADIUS_KM", "-1")

	_, err := LoadServerConfig()
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP_READ_TIMEOUT")
	require.Contains(t, err.Error(), "INIT_ATTEMPTS")
	require.Contains(t, err.Error(), "MATCH_RADIUS_KM")
}
