package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/honeynil/LandEscrowService/internal/infrastructure/observability"
	"github.com/honeynil/LandEscrowService/internal/repository"
)

const (
	EscrowEventsTopic = "escrow-events"
	defaultBatchSize  = 100
)

// OutboxRelay publishes pending outbox rows to the broker. Rows are keyed by
// transaction id so a consumer sees one transaction's events in order.
type OutboxRelay struct {
	outboxRepo repository.OutboxRepository
	producer   KafkaProducer
	topic      string
	interval   time.Duration
	logger     *slog.Logger
}

func NewOutboxRelay(outboxRepo repository.OutboxRepository, producer KafkaProducer, topic string, interval time.Duration, logger *slog.Logger) *OutboxRelay {
	if topic == "" {
		topic = EscrowEventsTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxRelay{
		outboxRepo: outboxRepo,
		producer:   producer,
		topic:      topic,
		interval:   interval,
		logger:     logger,
	}
}

func (r *OutboxRelay) Run(ctx context.Context) {
	r.logger.InfoContext(ctx, "outbox relay started", slog.Duration("interval", r.interval), slog.String("topic", r.topic))
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "outbox relay stopped")
			return
		case <-ticker.C:
			r.process(ctx)
		}
	}
}

func (r *OutboxRelay) process(ctx context.Context) {
	events, err := r.outboxRepo.FetchPending(ctx, defaultBatchSize)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to fetch pending events", slog.String("error", err.Error()))
		return
	}
	if len(events) == 0 {
		return
	}

	r.logger.DebugContext(ctx, "relaying outbox events", slog.Int("count", len(events)))

	for _, event := range events {
		headers := map[string]string{
			"event-id":   event.ID,
			"event-type": event.Type,
		}
		if err := r.producer.Send(ctx, r.topic, event.AggregateID, event.Payload, headers); err != nil {
			observability.OutboxPublished.WithLabelValues(event.Type, "failed").Inc()
			r.logger.ErrorContext(ctx, "failed to publish event",
				slog.String("event_id", event.ID),
				slog.String("event_type", event.Type),
				slog.String("error", err.Error()),
			)
			if err := r.outboxRepo.MarkFailed(ctx, event.ID); err != nil {
				r.logger.ErrorContext(ctx, "failed to mark event as failed",
					slog.String("event_id", event.ID),
					slog.String("error", err.Error()),
				)
			}
			continue
		}

		observability.OutboxPublished.WithLabelValues(event.Type, "published").Inc()
		if err := r.outboxRepo.MarkProcessed(ctx, event.ID); err != nil {
			r.logger.ErrorContext(ctx, "failed to mark event as processed",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
