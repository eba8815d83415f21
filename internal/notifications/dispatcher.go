package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/opstrack/incident-relay/internal/domain"
)

// Dispatcher routes outbound messages to the sender for their channel.
type Dispatcher struct {
	senders map[domain.NotificationChannel]Sender
}

// NewDispatcher creates a dispatcher over the given senders.
func NewDispatcher(senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.NotificationChannel]Sender)
	for _, s := range senders {
		senderMap[s.Channel()] = s
	}
	return &Dispatcher{senders: senderMap}
}

// Send delivers the message over the given channel and records send metrics.
func (d *Dispatcher) Send(ctx context.Context, channel domain.NotificationChannel, out Outbound) error {
	sender, ok := d.senders[channel]
	if !ok {
		return NewNonRetryableError(fmt.Errorf("no sender for channel %s", channel))
	}

	start := time.Now()
	err := sender.Send(ctx, out)
	recordNotificationDuration(string(channel), time.Since(start))

	return err
}
