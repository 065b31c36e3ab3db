// Package ingestion moves committed engine events onto the message bus
// for downstream consumers (indexers, keeper bots, UIs).
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PerpEngine/internal/event"
)

// Envelope wraps an engine event for the wire.
type Envelope struct {
	EventID        uuid.UUID   `json:"event_id"`
	EventType      string      `json:"event_type"`
	IdempotencyKey string      `json:"idempotency_key"`
	Asset          string      `json:"asset"`
	OccurredAt     time.Time   `json:"occurred_at"`
	Payload        event.Event `json:"payload"`
}

// QueueSink hands events from the engine to the publisher through a
// buffered channel. Emission never blocks the engine: when the buffer
// is full the event is dropped and counted; consumers can rebuild from
// the persisted trade history.
type QueueSink struct {
	ch      chan event.Event
	log     zerolog.Logger
	dropped int64
}

func NewQueueSink(capacity int, log zerolog.Logger) *QueueSink {
	return &QueueSink{
		ch:  make(chan event.Event, capacity),
		log: log.With().Str("component", "event_queue").Logger(),
	}
}

func (q *QueueSink) Emit(e event.Event) {
	select {
	case q.ch <- e:
	default:
		q.dropped++
		q.log.Warn().
			Str("event_type", e.EventType().String()).
			Str("idempotency_key", e.IdempotencyKey()).
			Int64("dropped_total", q.dropped).
			Msg("outbound queue full, event dropped")
	}
}

// Chan is the consumer side of the queue.
func (q *QueueSink) Chan() <-chan event.Event { return q.ch }

// Close releases the consumer. Emit must not be called afterwards.
func (q *QueueSink) Close() { close(q.ch) }

var _ event.Sink = (*QueueSink)(nil)

// OutboundPublisher publishes engine events to NATS JetStream.
// Subjects follow perp.engine.events.{event_type}.{asset}.
type OutboundPublisher struct {
	js  jetstream.JetStream
	in  <-chan event.Event
	log zerolog.Logger
}

func NewOutboundPublisher(js jetstream.JetStream, in <-chan event.Event, log zerolog.Logger) *OutboundPublisher {
	return &OutboundPublisher{
		js:  js,
		in:  in,
		log: log.With().Str("component", "outbound_publisher").Logger(),
	}
}

// Run consumes the queue until the context ends or the queue closes.
// Publish failures are non-fatal; consumers can query trade history.
func (op *OutboundPublisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-op.in:
			if !ok {
				return nil
			}
			if err := op.publish(ctx, evt); err != nil {
				op.log.Warn().
					Err(err).
					Str("event_type", evt.EventType().String()).
					Str("idempotency_key", evt.IdempotencyKey()).
					Msg("outbound publish failed")
			}
		}
	}
}

func (op *OutboundPublisher) publish(ctx context.Context, evt event.Event) error {
	env := Envelope{
		EventID:        uuid.New(),
		EventType:      evt.EventType().String(),
		IdempotencyKey: evt.IdempotencyKey(),
		Asset:          evt.Asset(),
		OccurredAt:     evt.OccurredAt(),
		Payload:        evt,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	subject := fmt.Sprintf("perp.engine.events.%s.%s", env.EventType, env.Asset)
	// The idempotency key deduplicates redeliveries on the stream.
	_, err = op.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.IdempotencyKey))
	return err
}

// EnsureOutboundStream creates or updates the outbound events stream.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "PERP_ENGINE_EVENTS",
		Subjects:  []string{"perp.engine.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create outbound stream: %w", err)
	}
	return nil
}
