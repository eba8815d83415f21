// Package events serializes incident lifecycle changes into immutable event
// envelopes and hands them to the event bus without blocking the caller.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/opstrack/incident-relay/internal/eventbus"
	"github.com/opstrack/incident-relay/internal/pkg/ctxlog"
)

// Publisher emits incident lifecycle events. Publish failures are logged and
// absorbed: the originating state change has already committed and must not
// be undone or failed because of transport trouble.
type Publisher struct {
	bus eventbus.Publisher
}

// NewPublisher creates a new event publisher on top of the bus.
func NewPublisher(bus eventbus.Publisher) *Publisher {
	return &Publisher{bus: bus}
}

// PublishIncidentEvent builds an envelope with a fresh event id and a
// snapshot of the incident, and hands it to the bus. The call returns once
// the message is on the bus's send path; the broker acknowledgment is
// observed on a background goroutine and only logged.
func (p *Publisher) PublishIncidentEvent(ctx context.Context, eventType domain.EventType, inc *domain.Incident) {
	logger := ctxlog.FromContext(ctx)

	event := domain.IncidentEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Payload:   domain.SnapshotPayload(inc),
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("failed to marshal event",
			"event_id", event.EventID,
			"event_type", eventType,
			"error", err,
		)
		recordEventPublished(eventType.Topic(), "marshal_error")
		return
	}

	topic := eventType.Topic()
	logger.Info("publishing event",
		"event_id", event.EventID,
		"event_type", eventType,
		"topic", topic,
		"incident_id", inc.ID,
	)

	ackCh, err := p.bus.Publish(ctx, topic, event.EventID, data)
	if err != nil {
		logger.Error("failed to publish event",
			"event_id", event.EventID,
			"event_type", eventType,
			"topic", topic,
			"error", err,
		)
		recordEventPublished(topic, "error")
		return
	}

	go func() {
		ack, ok := <-ackCh
		if !ok {
			logger.Error("publish acknowledgment channel closed",
				"event_id", event.EventID,
				"event_type", eventType,
				"topic", topic,
			)
			recordEventPublished(topic, "error")
			return
		}

		if ack.Err != nil {
			logger.Error("event delivery failed",
				"event_id", event.EventID,
				"event_type", eventType,
				"topic", topic,
				"error", ack.Err,
			)
			recordEventPublished(topic, "error")
			return
		}

		logger.Info("event delivered",
			"event_id", event.EventID,
			"event_type", eventType,
			"topic", topic,
			"partition", ack.Partition,
			"offset", ack.Offset,
		)
		recordEventPublished(topic, "success")
	}()
}
