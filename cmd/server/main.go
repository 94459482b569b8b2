package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/LandEscrowService/internal/api"
	"github.com/honeynil/LandEscrowService/internal/config"
	"github.com/honeynil/LandEscrowService/internal/handler"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/kafka"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/payment"
	"github.com/honeynil/LandEscrowService/internal/infrastructure/redis"
	"github.com/honeynil/LandEscrowService/internal/observability"
	"github.com/honeynil/LandEscrowService/internal/repository"
	"github.com/honeynil/LandEscrowService/internal/repository/memory"
	core "github.com/honeynil/LandEscrowService/internal/repository/postgres"
	service "github.com/honeynil/LandEscrowService/internal/services"
	_ "github.com/lib/pq"
)

const serviceName = "land-escrow-service"

type repositories struct {
	escrow    repository.EscrowRepository
	directory repository.DirectoryRepository
	outbox    repository.OutboxRepository
	close     func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Логи, метрики, трейсы
	shutdownTracing, metricsHandler, err := observability.Setup(ctx, serviceName, cfg.LogLevel, cfg.OTLPEndpoint)
	if err != nil {
		slog.Error("failed to set up observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Error("failed to shut down tracing", "error", err)
		}
	}()

	repos, err := openRepositories(cfg)
	if err != nil {
		slog.Error("failed to open storage", "storage", cfg.Storage, "error", err)
		os.Exit(1)
	}
	defer repos.close()

	redisClient, err := openRedis(ctx, cfg.RedisAddr)
	if err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	var gateway payment.Gateway
	if cfg.PaymentGatewayURL != "" {
		gateway = payment.NewHTTPGateway(payment.Config{BaseURL: cfg.PaymentGatewayURL, Token: cfg.PaymentGatewayToken})
	} else {
		slog.Warn("PAYMENT_GATEWAY_URL not set, using the sandbox gateway")
		gateway = payment.NewSandbox().WithAutoConfirm()
	}

	svc := service.NewEscrowService(repos.escrow, repos.directory, gateway, redisClient, service.Options{
		EnforceMilestoneTotal: cfg.EnforceMilestoneTotal,
	})

	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		relay := kafka.NewOutboxRelay(repos.outbox, producer, kafka.EscrowEventsTopic, cfg.OutboxPollInterval, slog.Default())
		go relay.Run(ctx)

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, kafka.PaymentEventsTopic, cfg.KafkaGroupID, svc)
		defer consumer.Close()
		go consumer.Consume(ctx)
	} else {
		slog.Warn("KAFKA_BROKER not set, outbox events stay in storage")
	}

	limiter := api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartCleanup(ctx, time.Minute)

	router := api.SetupRouter(handler.NewHandler(svc, redisClient), redisClient, api.RouterConfig{
		JWTSecret:      cfg.JWTSecret,
		Limiter:        limiter,
		MetricsHandler: metricsHandler,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}

func openRepositories(cfg *config.Config) (*repositories, error) {
	if cfg.Storage == config.StorageMemory {
		slog.Warn("using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		return &repositories{escrow: store, directory: store, outbox: store, close: func() error { return nil }}, nil
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err := core.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &repositories{
		escrow:    core.NewPostgresEscrowRepository(db),
		directory: core.NewPostgresDirectoryRepository(db),
		outbox:    core.NewPostgresOutboxRepository(db),
		close:     db.Close,
	}, nil
}

func openRedis(ctx context.Context, addr string) (redis.RedisClient, error) {
	if addr == "" {
		slog.Warn("REDIS_ADDR not set, using in-process cache")
		return redis.NewMemoryClient(), nil
	}
	return redis.NewClient(ctx, addr)
}
