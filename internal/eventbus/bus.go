// Package eventbus defines the contract of the ordered, partitioned,
// at-least-once publish/subscribe transport the service relies on, and ships
// an in-process implementation of it.
package eventbus

import (
	"context"
	"errors"
)

// Bus errors.
var (
	ErrClosed       = errors.New("event bus is closed")
	ErrUnknownTopic = errors.New("unknown topic")
)

// Ack reports the broker's acknowledgment of a published message.
// Observed asynchronously; a failed send carries Err.
type Ack struct {
	Partition int
	Offset    int64
	Err       error
}

// Message is one record delivered to a consumer.
type Message struct {
	Topic     string
	Partition int
	Offset    int64
	Key       string
	Value     []byte
}

// Publisher hands messages to the bus send path. Publish returns as soon as
// the message is accepted for sending; the acknowledgment arrives on the
// returned channel exactly once.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) (<-chan Ack, error)
}

// Subscriber attaches consumer-group readers to topics.
type Subscriber interface {
	Subscribe(topic, group string) (Consumer, error)
}

// Bus is the full transport contract.
type Bus interface {
	Publisher
	Subscriber
}

// Consumer reads one topic on behalf of a consumer group. Delivery is
// at-least-once: a message fetched with Next is redelivered after a
// resubscribe unless it was committed first. Within a partition, delivery
// order matches publish order.
type Consumer interface {
	// Next blocks until a message beyond the group's committed offset is
	// available, or ctx is done.
	Next(ctx context.Context) (Message, error)
	// Commit marks the message as consumed for the group. Messages at or
	// before the committed offset of its partition are never redelivered.
	Commit(ctx context.Context, msg Message) error
	Close() error
}
