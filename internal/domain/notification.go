package domain

import "time"

// NotificationChannel is the delivery channel for a notification.
type NotificationChannel string

// Notification channels.
const (
	ChannelEmail NotificationChannel = "EMAIL"
	ChannelSMS   NotificationChannel = "SMS"
)

// IsValid checks if the channel is known.
func (c NotificationChannel) IsValid() bool {
	return c == ChannelEmail || c == ChannelSMS
}

// NotificationStatus is the outcome state of a dispatch attempt.
type NotificationStatus string

// Notification statuses. PENDING transitions to SENT or FAILED within the
// same consumption that created the record.
const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// Notification is a ledger record of one dispatch attempt. One row is
// created per consumed event and channel; the (EventID, Channel) pair is
// unique, which is what makes duplicate deliveries observable as a single
// user-visible effect.
type Notification struct {
	ID            int64               `json:"id"`
	EventID       string              `json:"event_id"`
	EventType     EventType           `json:"event_type"`
	Channel       NotificationChannel `json:"channel"`
	Recipient     string              `json:"recipient"`
	Subject       string              `json:"subject,omitempty"`
	Body          string              `json:"body"`
	Status        NotificationStatus  `json:"status"`
	SentAt        *time.Time          `json:"sent_at"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
	ErrorMessage  string              `json:"error_message,omitempty"`
	RetryCount    int                 `json:"retry_count"`
	NextAttemptAt *time.Time          `json:"next_attempt_at,omitempty"`
}
