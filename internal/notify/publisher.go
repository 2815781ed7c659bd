// Package notify publishes informational events to NATS JetStream for
// downstream consumers (reporting, agent apps). Publishing is strictly
// best-effort: a sale or payout never fails or blocks because an event
// could not be delivered.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"borlette/internal/observability"
)

// Subjects follow the pattern borlette.events.{event_type}.
const (
	subjectPrefix = "borlette.events"
	streamName    = "BORLETTE_EVENTS"
)

// Event is one outbound notification.
type Event struct {
	Subject   string    `json:"subject"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher queues events from the engine and ships them to JetStream
// from its own goroutine. The queue is bounded; when it is full new
// events are dropped and counted rather than applying backpressure to
// the sale path.
type Publisher struct {
	js      jetstream.JetStream
	log     zerolog.Logger
	metrics *observability.Metrics
	queue   chan Event
}

// NewPublisher creates a publisher with a bounded queue.
func NewPublisher(js jetstream.JetStream, log zerolog.Logger, m *observability.Metrics, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Publisher{
		js:      js,
		log:     log,
		metrics: m,
		queue:   make(chan Event, queueSize),
	}
}

// Publish enqueues an event. Never blocks: a full queue drops the
// event.
func (p *Publisher) Publish(subject string, payload any) {
	evt := Event{Subject: subject, Payload: payload, Timestamp: time.Now().UTC()}
	select {
	case p.queue <- evt:
	default:
		if p.metrics != nil {
			p.metrics.PublishDrops.Inc()
		}
		p.log.Warn().Str("subject", subject).Msg("publish queue full, event dropped")
	}
}

// Run drains the queue until ctx is cancelled. Publish failures are
// logged and skipped; consumers that need completeness read the store.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-p.queue:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, evt); err != nil {
				p.log.Warn().Err(err).Str("subject", evt.Subject).Msg("outbound publish failed")
				continue
			}
			if p.metrics != nil {
				p.metrics.EventsPublished.Inc()
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.js.Publish(ctx, fmt.Sprintf("%s.%s", subjectPrefix, evt.Subject), data)
	return err
}

// EnsureStream creates or updates the outbound events stream.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      streamName,
		Subjects:  []string{subjectPrefix + ".>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create events stream: %w", err)
	}
	return nil
}
