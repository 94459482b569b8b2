package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"HTTP_ADDR", "STORAGE", "POSTGRES_DSN", "REDIS_ADDR", "KAFKA_BROKER", "KAFKA_GROUP_ID",
	"JWT_SECRET", "PAYMENT_GATEWAY_URL", "PAYMENT_GATEWAY_TOKEN", "ENFORCE_MILESTONE_TOTAL",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "OUTBOX_POLL_INTERVAL", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("PostgresDefaults", func(t *testing.T) {
		clearEnv(t)
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, StoragePostgres, cfg.Storage)
		assert.Equal(t, ":8080", cfg.HTTPAddr)
		assert.Contains(t, cfg.PostgresDSN, "dbname=escrow")
		assert.Equal(t, "localhost:6379", cfg.RedisAddr)
		assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
		assert.False(t, cfg.EnforceMilestoneTotal)
		assert.Equal(t, 10.0, cfg.RateLimitRPS)
		assert.Equal(t, 20, cfg.RateLimitBurst)
		assert.Equal(t, 2*time.Second, cfg.OutboxPollInterval)
	})

	t.Run("MemoryLeavesBackendsEmpty", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STORAGE", "memory")
		cfg, err := Load()
		require.NoError(t, err)

		assert.Empty(t, cfg.RedisAddr)
		assert.Empty(t, cfg.KafkaBrokers)
		assert.Empty(t, cfg.PaymentGatewayURL)
	})

	t.Run("Overrides", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("KAFKA_BROKER", "k1:9092, k2:9092")
		t.Setenv("ENFORCE_MILESTONE_TOTAL", "true")
		t.Setenv("RATE_LIMIT_RPS", "2.5")
		t.Setenv("OUTBOX_POLL_INTERVAL", "500ms")
		t.Setenv("LOG_LEVEL", "debug")
		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
		assert.True(t, cfg.EnforceMilestoneTotal)
		assert.Equal(t, 2.5, cfg.RateLimitRPS)
		assert.Equal(t, 500*time.Millisecond, cfg.OutboxPollInterval)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("InvalidValues", func(t *testing.T) {
		for key, value := range map[string]string{
			"ENFORCE_MILESTONE_TOTAL": "maybe",
			"RATE_LIMIT_BURST":        "lots",
			"OUTBOX_POLL_INTERVAL":    "-1s",
			"STORAGE":                 "sqlite",
		} {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err, key)
		}
	})
}
