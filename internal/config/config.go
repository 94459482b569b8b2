package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	HTTPAddr     string
	Storage      string
	PostgresDSN  string
	RedisAddr    string
	KafkaBrokers []string
	KafkaGroupID string
	JWTSecret    string

	PaymentGatewayURL   string
	PaymentGatewayToken string

	EnforceMilestoneTotal bool
	RateLimitRPS          float64
	RateLimitBurst        int
	OutboxPollInterval    time.Duration

	OTLPEndpoint string
	LogLevel     string
}

// Load reads .env (when present) and the environment. With STORAGE=memory the Redis
// and Kafka addresses default to empty, which selects the in-process fallbacks.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("failed to load .env file, using default values", "error", err)
	}

	cfg := &Config{
		HTTPAddr:            getenv("HTTP_ADDR", ":8080"),
		Storage:             strings.ToLower(getenv("STORAGE", StoragePostgres)),
		PostgresDSN:         os.Getenv("POSTGRES_DSN"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKER")),
		KafkaGroupID:        getenv("KAFKA_GROUP_ID", "land-escrow-service"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		PaymentGatewayURL:   os.Getenv("PAYMENT_GATEWAY_URL"),
		PaymentGatewayToken: os.Getenv("PAYMENT_GATEWAY_TOKEN"),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:            getenv("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.EnforceMilestoneTotal, err = parseBool("ENFORCE_MILESTONE_TOTAL", false); err != nil {
		return nil, err
	}
	if cfg.RateLimitRPS, err = parseFloat("RATE_LIMIT_RPS", 10); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = parseInt("RATE_LIMIT_BURST", 20); err != nil {
		return nil, err
	}
	if cfg.OutboxPollInterval, err = parseDuration("OUTBOX_POLL_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}

	switch cfg.Storage {
	case StoragePostgres:
		if cfg.PostgresDSN == "" {
			cfg.PostgresDSN = "host=localhost user=postgres password=postgres dbname=escrow sslmode=disable"
		}
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
		}
		if len(cfg.KafkaBrokers) == 0 {
			cfg.KafkaBrokers = []string{"localhost:9092"}
		}
	case StorageMemory:
	default:
		return nil, fmt.Errorf("unknown STORAGE %q", cfg.Storage)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "supersecret"
	}
	if cfg.OutboxPollInterval <= 0 {
		return nil, fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive")
	}

	slog.Info("config loaded",
		"storage", cfg.Storage,
		"http_addr", cfg.HTTPAddr,
		"redis_addr", cfg.RedisAddr,
		"kafka_brokers", cfg.KafkaBrokers,
		"payment_gateway", cfg.PaymentGatewayURL,
		"enforce_milestone_total", cfg.EnforceMilestoneTotal)
	return cfg, nil
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func parseInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
