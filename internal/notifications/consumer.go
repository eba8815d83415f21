package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/opstrack/incident-relay/internal/eventbus"
	"golang.org/x/sync/errgroup"
)

// ConsumerConfig contains consumer configuration.
type ConsumerConfig struct {
	Group string
	Retry RetryPolicy
}

// DefaultConsumerConfig returns default consumer configuration.
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Group: "notification-service",
		Retry: DefaultRetryPolicy(),
	}
}

// Consumer reads lifecycle events from the bus and turns them into ledger
// rows and deliveries. One worker runs per topic; a failure while handling
// one event never stops the worker or blocks later events, and every fetched
// message is committed regardless of handling outcome.
type Consumer struct {
	config     ConsumerConfig
	bus        eventbus.Subscriber
	repo       Repository
	dispatcher *Dispatcher

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// NewConsumer creates a new event consumer.
func NewConsumer(config ConsumerConfig, bus eventbus.Subscriber, repo Repository, dispatcher *Dispatcher) *Consumer {
	return &Consumer{
		config:     config,
		bus:        bus,
		repo:       repo,
		dispatcher: dispatcher,
	}
}

// Start subscribes one worker per lifecycle topic.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	eg, ctx := errgroup.WithContext(ctx)
	c.eg = eg

	topics := domain.EventTopics()
	for _, topic := range topics {
		consumer, err := c.bus.Subscribe(topic, c.config.Group)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}

		topic := topic
		eg.Go(func() error {
			defer func() { _ = consumer.Close() }()
			c.run(ctx, topic, consumer)
			return nil
		})
	}

	slog.Info("notification consumer started",
		"group", c.config.Group,
		"topics", len(topics),
	)

	return nil
}

// Stop cancels all workers and waits for them to drain.
func (c *Consumer) Stop() {
	c.cancel()
	_ = c.eg.Wait()
	slog.Info("notification consumer stopped")
}

func (c *Consumer) run(ctx context.Context, topic string, consumer eventbus.Consumer) {
	for {
		msg, err := consumer.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, eventbus.ErrClosed) {
				return
			}
			slog.Error("failed to fetch next message", "topic", topic, "error", err)
			return
		}

		c.process(ctx, msg)

		// Commit unconditionally: a poisoned event must not wedge the topic.
		if err := consumer.Commit(ctx, msg); err != nil {
			slog.Error("failed to commit message",
				"topic", topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg eventbus.Message) {
	var event domain.IncidentEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		slog.Error("malformed event, skipping",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		recordEventConsumed(msg.Topic, "malformed")
		return
	}

	for _, in := range intentsFor(event) {
		c.deliver(ctx, event, in)
	}

	recordEventConsumed(msg.Topic, "ok")

	slog.Debug("event processed",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"event_id", event.EventID,
	)
}

func (c *Consumer) deliver(ctx context.Context, event domain.IncidentEvent, in intent) {
	n := &domain.Notification{
		EventID:   event.EventID,
		EventType: event.EventType,
		Channel:   in.channel,
		Recipient: in.recipient,
		Subject:   in.subject,
		Body:      in.body,
		Status:    domain.NotificationPending,
	}

	if err := c.repo.Insert(ctx, n); err != nil {
		if errors.Is(err, ErrDuplicateDelivery) {
			slog.Debug("duplicate delivery suppressed",
				"event_id", event.EventID,
				"channel", in.channel,
			)
			recordNotificationSent(string(in.channel), "duplicate")
			return
		}
		slog.Error("failed to record notification",
			"event_id", event.EventID,
			"channel", in.channel,
			"error", err,
		)
		return
	}

	if err := c.dispatcher.Send(ctx, in.channel, Outbound{To: in.recipient, Subject: in.subject, Body: in.body}); err != nil {
		markFailure(ctx, c.repo, c.config.Retry, n, err, n.RetryCount+1)
		return
	}

	if err := c.repo.MarkSent(ctx, n.ID, time.Now().UTC()); err != nil {
		slog.Error("failed to mark notification sent", "id", n.ID, "error", err)
	}
	recordNotificationSent(string(in.channel), "success")
}
