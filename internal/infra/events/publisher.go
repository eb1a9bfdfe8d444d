// Package events publishes simulation and customer lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/resilience"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("events")

// messageWriter is the subset of *kafkago.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a single topic, keyed by aggregate
// id so the hash balancer keeps one simulation's events on one partition.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	cfg    resilience.Config
	logger *zap.Logger
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, cfg resilience.Config, logger *zap.Logger) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
	}
	return newKafkaPublisher(w, topic, cfg, logger)
}

func newKafkaPublisher(w messageWriter, topic string, cfg resilience.Config, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic, cfg: cfg, logger: logger}
}

// Publish sends evt, retrying transient broker failures.
func (p *KafkaPublisher) Publish(ctx context.Context, evt domain.Event) error {
	ctx, span := tracer.Start(ctx, "Kafka.Publish")
	defer span.End()

	evt = stamp(evt)
	span.SetAttributes(
		attribute.String("event.type", evt.Type),
		attribute.String("event.key", evt.Key),
	)

	msg, err := toMessage(evt)
	if err != nil {
		return err
	}

	err = resilience.RetryWithBackoff(ctx, p.cfg, func() error {
		return p.writer.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("kafka publish to %s: %w", p.topic, err)
	}

	p.logger.Debug("event published",
		zap.String("topic", p.topic),
		zap.String("type", evt.Type),
		zap.String("key", evt.Key),
	)
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// stamp fills in the event id and timestamp when the caller left them empty.
func stamp(evt domain.Event) domain.Event {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	return evt
}

func toMessage(evt domain.Event) (kafkago.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("encode event %s: %w", evt.Type, err)
	}
	return kafkago.Message{
		Key:   []byte(evt.Key),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafkago.Header{
			{Key: "event-type", Value: []byte(evt.Type)},
			{Key: "event-id", Value: []byte(evt.ID)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}, nil
}

// LogPublisher writes events to the structured log. It is used when no
// broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, evt domain.Event) error {
	evt = stamp(evt)
	p.logger.Info("event",
		zap.String("event_id", evt.ID),
		zap.String("type", evt.Type),
		zap.String("key", evt.Key),
		zap.String("actor_id", evt.ActorID),
		zap.Time("occurred_at", evt.OccurredAt),
		zap.Any("payload", evt.Payload),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
