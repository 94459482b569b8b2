package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	stderrors "errors"

	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const PaymentEventsTopic = "payment-events"

// FundingHandler applies the gateway's verdict on a funding payment to the escrow it
// belongs to.
type FundingHandler interface {
	ConfirmFunding(ctx context.Context, paymentRef string) error
	FailFunding(ctx context.Context, paymentRef string) error
}

type paymentEvent struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Consumer reads payment gateway notifications and forwards funding outcomes.
type Consumer struct {
	reader   *kafka.Reader
	fundings FundingHandler
}

func NewConsumer(brokers []string, topic, groupID string, fundings FundingHandler) *Consumer {
	if topic == "" {
		topic = PaymentEventsTopic
	}
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		fundings: fundings,
	}
}

func (c *Consumer) Consume(ctx context.Context) {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("payment consumer stopped")
				return
			}
			slog.Error("failed to read Kafka message", "topic", c.reader.Config().Topic, "error", err)
			continue
		}

		slog.Debug("Kafka message received", "topic", msg.Topic, "key", string(msg.Key), "offset", msg.Offset)
		if err := handlePaymentEvent(ctx, c.fundings, msg.Value); err != nil {
			// TODO: Send to dead-letter queue
			slog.Error("failed to handle payment event", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// handlePaymentEvent confirms or fails the funding named by the event. Interim statuses
// are logged and dropped; an unknown reference is not an error for the consumer.
func handlePaymentEvent(ctx context.Context, fundings FundingHandler, value []byte) error {
	var event paymentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal payment event: %w", err)
	}
	if event.Reference == "" {
		return fmt.Errorf("%w: payment event without reference", pkgerrors.ErrInvalidInput)
	}

	var apply func(context.Context, string) error
	switch strings.ToUpper(event.Status) {
	case "CONFIRMED", "SUCCESS", "SUCCEEDED":
		apply = fundings.ConfirmFunding
	case "FAILED", "DECLINED", "CANCELLED", "CANCELED", "EXPIRED":
		apply = fundings.FailFunding
	default:
		slog.Info("payment event ignored", "reference", event.Reference, "status", event.Status)
		return nil
	}

	if err := apply(ctx, event.Reference); err != nil {
		if stderrors.Is(err, pkgerrors.ErrPaymentNotFound) {
			slog.Warn("payment event for unknown payment", "reference", event.Reference, "status", event.Status)
			return nil
		}
		return err
	}
	slog.Info("payment event applied", "reference", event.Reference, "status", event.Status)
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
