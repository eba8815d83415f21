// Package postgres provides the PostgreSQL implementation of the
// notification ledger repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/opstrack/incident-relay/internal/notifications"
)

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const notificationColumns = `id, event_id, event_type, channel, recipient, subject, body,
	status, sent_at, created_at, updated_at, error_message, retry_count, next_attempt_at`

// Insert records a PENDING ledger row. The unique (event_id, channel) index
// turns redelivered events into ErrDuplicateDelivery instead of a second row.
func (r *Repository) Insert(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (event_id, event_type, channel, recipient, subject, body, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id, channel) DO NOTHING
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		n.EventID,
		n.EventType,
		n.Channel,
		n.Recipient,
		n.Subject,
		n.Body,
		n.Status,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return notifications.ErrDuplicateDelivery
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// MarkSent finalizes a delivered notification.
func (r *Repository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `
		UPDATE notifications
		SET status = $2, sent_at = $3, error_message = '', next_attempt_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, domain.NotificationSent, sentAt)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrNotificationNotFound
	}
	return nil
}

// MarkFailed records a failed attempt. A nil nextAttempt makes the failure
// final.
func (r *Repository) MarkFailed(ctx context.Context, id int64, errMsg string, retryCount int, nextAttempt *time.Time) error {
	query := `
		UPDATE notifications
		SET status = $2, error_message = $3, retry_count = $4, next_attempt_at = $5, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.db.Exec(ctx, query, id, domain.NotificationFailed, errMsg, retryCount, nextAttempt)
	if err != nil {
		return fmt.Errorf("mark notification failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notifications.ErrNotificationNotFound
	}
	return nil
}

// List retrieves ledger entries with optional filters, newest first, plus the
// total matching count.
func (r *Repository) List(ctx context.Context, filters notifications.Filters) ([]*domain.Notification, int64, error) {
	where := `TRUE`
	args := []any{}

	if filters.Status != nil {
		args = append(args, *filters.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.Channel != nil {
		args = append(args, *filters.Channel)
		where += fmt.Sprintf(" AND channel = $%d", len(args))
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM notifications WHERE ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	args = append(args, filters.Limit)
	limitPos := len(args)
	args = append(args, filters.Offset)
	offsetPos := len(args)

	query := fmt.Sprintf(`
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, limitPos, offsetPos)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result, err := scanNotifications(rows)
	if err != nil {
		return nil, 0, err
	}

	return result, total, nil
}

// FetchRetryable returns FAILED rows with retry budget left whose backoff has
// elapsed, plus PENDING rows untouched long enough to assume their consumer
// died before finishing. Oldest first so starvation is impossible.
func (r *Repository) FetchRetryable(ctx context.Context, limit, maxAttempts int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE (status = $1 AND retry_count < $2 AND next_attempt_at IS NOT NULL AND next_attempt_at <= NOW())
		   OR (status = $3 AND updated_at < NOW() - INTERVAL '10 minutes')
		ORDER BY updated_at ASC
		LIMIT $4
	`
	rows, err := r.db.Query(ctx, query,
		domain.NotificationFailed,
		maxAttempts,
		domain.NotificationPending,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch retryable notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

func scanNotifications(rows pgx.Rows) ([]*domain.Notification, error) {
	result := make([]*domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		err := rows.Scan(
			&n.ID,
			&n.EventID,
			&n.EventType,
			&n.Channel,
			&n.Recipient,
			&n.Subject,
			&n.Body,
			&n.Status,
			&n.SentAt,
			&n.CreatedAt,
			&n.UpdatedAt,
			&n.ErrorMessage,
			&n.RetryCount,
			&n.NextAttemptAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return result, nil
}
