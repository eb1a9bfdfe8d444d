package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/ccb-backoffice-go/internal/domain"
	"github.com/boddenberg/ccb-backoffice-go/internal/infra/resilience"
	"github.com/boddenberg/ccb-backoffice-go/internal/port"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	_ port.EventPublisher = (*KafkaPublisher)(nil)
	_ port.EventPublisher = (*LogPublisher)(nil)
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	msgs     []kafkago.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafkago.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "ccb.simulations", resilience.Config{}, zap.NewNop())

	err := p.Publish(context.Background(), domain.Event{
		Type:    domain.EventSimulationCreated,
		Key:     "sim-1",
		ActorID: "user-1",
		Payload: map[string]any{"installments": 12},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "sim-1", string(msg.Key))
	assert.Equal(t, domain.EventSimulationCreated, header(msg, "event-type"))
	assert.NotEmpty(t, header(msg, "event-id"))

	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "user-1", decoded.ActorID)
	assert.False(t, decoded.OccurredAt.IsZero())
	assert.Equal(t, header(msg, "event-id"), decoded.ID)
}

func TestKafkaPublisher_RetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failures: 2}
	cfg := resilience.Config{MaxRetries: 3, InitialBackoff: time.Millisecond}
	p := newKafkaPublisher(w, "t", cfg, zap.NewNop())

	require.NoError(t, p.Publish(context.Background(), domain.Event{Type: "x", Key: "k"}))
	assert.Len(t, w.msgs, 1)
}

func TestKafkaPublisher_GivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	cfg := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}
	p := newKafkaPublisher(w, "t", cfg, zap.NewNop())

	err := p.Publish(context.Background(), domain.Event{Type: "x", Key: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka publish to t")
	assert.Empty(t, w.msgs)
}

func TestKafkaPublisher_KeepsCallerIDAndTime(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, "t", resilience.Config{}, zap.NewNop())
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, p.Publish(context.Background(), domain.Event{ID: "evt-1", Type: "x", Key: "k", OccurredAt: at}))
	assert.Equal(t, "evt-1", header(w.msgs[0], "event-id"))
	assert.Equal(t, at, w.msgs[0].Time)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	require.NoError(t, p.Publish(context.Background(), domain.Event{Type: domain.EventCustomerCreated, Key: "c-1"}))
	require.NoError(t, p.Close())

	entries := logs.FilterMessage("event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EventCustomerCreated, entries[0].ContextMap()["type"])
	assert.Equal(t, "c-1", entries[0].ContextMap()["key"])
}
