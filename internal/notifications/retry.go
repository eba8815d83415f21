package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/robfig/cron/v3"
)

// RetryPolicy bounds redelivery of failed notifications.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    30 * time.Second,
		MaxBackoff:        10 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// nextAttempt returns when the given attempt should be retried,
// with exponential backoff capped at MaxBackoff.
func (p RetryPolicy) nextAttempt(attempt int) time.Time {
	backoff := float64(p.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= p.BackoffMultiplier
	}

	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}

	return time.Now().Add(time.Duration(backoff))
}

// markFailure records a failed delivery attempt. Retryable failures within
// the attempt budget get a next attempt time; everything else is final.
func markFailure(ctx context.Context, repo Repository, policy RetryPolicy, n *domain.Notification, sendErr error, attempt int) {
	var next *time.Time
	outcome := "failed"

	if isRetryable(sendErr) && attempt < policy.MaxAttempts {
		t := policy.nextAttempt(attempt)
		next = &t
		outcome = "retry"
	}

	if err := repo.MarkFailed(ctx, n.ID, sendErr.Error(), attempt, next); err != nil {
		slog.Error("failed to mark notification failed", "id", n.ID, "error", err)
	}

	recordNotificationSent(string(n.Channel), outcome)

	slog.Warn("notification delivery failed",
		"id", n.ID,
		"channel", n.Channel,
		"attempt", attempt,
		"max_attempts", policy.MaxAttempts,
		"retry", next != nil,
		"error", sendErr,
	)
}

// Sweeper periodically re-attempts failed deliveries whose backoff has
// elapsed, and reclaims PENDING rows abandoned mid-flight.
type Sweeper struct {
	schedule   string
	batchSize  int
	policy     RetryPolicy
	repo       Repository
	dispatcher *Dispatcher

	cron *cron.Cron
}

// NewSweeper creates a retry sweeper. Schedule is a cron expression.
func NewSweeper(schedule string, batchSize int, policy RetryPolicy, repo Repository, dispatcher *Dispatcher) *Sweeper {
	return &Sweeper{
		schedule:   schedule,
		batchSize:  batchSize,
		policy:     policy,
		repo:       repo,
		dispatcher: dispatcher,
		cron:       cron.New(),
	}
}

// Start schedules the sweep.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("schedule retry sweep: %w", err)
	}

	s.cron.Start()
	slog.Info("retry sweeper started", "schedule", s.schedule, "batch_size", s.batchSize)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("retry sweeper stopped")
}

// Sweep re-attempts one batch of retryable deliveries.
func (s *Sweeper) Sweep(ctx context.Context) {
	items, err := s.repo.FetchRetryable(ctx, s.batchSize, s.policy.MaxAttempts)
	if err != nil {
		slog.Error("failed to fetch retryable notifications", "error", err)
		return
	}

	if len(items) == 0 {
		return
	}

	recordRetriesSwept(len(items))
	slog.Info("retrying failed notifications", "count", len(items))

	for _, n := range items {
		err := s.dispatcher.Send(ctx, n.Channel, Outbound{To: n.Recipient, Subject: n.Subject, Body: n.Body})
		if err != nil {
			markFailure(ctx, s.repo, s.policy, n, err, n.RetryCount+1)
			continue
		}

		if err := s.repo.MarkSent(ctx, n.ID, time.Now().UTC()); err != nil {
			slog.Error("failed to mark notification sent", "id", n.ID, "error", err)
		}
		recordNotificationSent(string(n.Channel), "success")
	}
}
