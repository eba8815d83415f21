package notifications

import (
	"context"
	"time"

	"github.com/opstrack/incident-relay/internal/domain"
)

// Filters narrows ledger listings.
type Filters struct {
	Status  *domain.NotificationStatus
	Channel *domain.NotificationChannel
	Limit   int
	Offset  int
}

// Repository defines the notification ledger storage contract.
type Repository interface {
	// Insert records a PENDING ledger row. Returns ErrDuplicateDelivery if a
	// row for the same (event_id, channel) pair already exists.
	Insert(ctx context.Context, n *domain.Notification) error
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	// MarkFailed records a failed attempt. A nil nextAttempt means the
	// failure is permanent and the row is not picked up by retries.
	MarkFailed(ctx context.Context, id int64, errMsg string, retryCount int, nextAttempt *time.Time) error
	List(ctx context.Context, filters Filters) ([]*domain.Notification, int64, error)
	// FetchRetryable returns FAILED rows whose retry budget is not exhausted
	// and whose next attempt time has passed, plus PENDING rows abandoned by
	// a crashed consumer.
	FetchRetryable(ctx context.Context, limit, maxAttempts int) ([]*domain.Notification, error)
}
