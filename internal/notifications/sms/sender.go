// Package sms provides SMS notification delivery.
package sms

import (
	"context"
	"errors"
	"log/slog"

	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/opstrack/incident-relay/internal/notifications"
	"golang.org/x/time/rate"
)

// Config holds SMS sender configuration.
type Config struct {
	Enabled bool
	From    string
	// RateLimit is messages per second allowed towards the gateway.
	RateLimit float64
}

// Sender implements SMS delivery.
type Sender struct {
	config  Config
	limiter *rate.Limiter
}

// NewSender creates a new SMS sender.
// Returns error if enabled but required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.From == "" {
			return nil, errors.New("sms sender: from number is required when enabled")
		}
	}

	if config.RateLimit <= 0 {
		config.RateLimit = 1
	}

	slog.Info("sms sender configured",
		"enabled", config.Enabled,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Channel returns the delivery channel.
func (s *Sender) Channel() domain.NotificationChannel {
	return domain.ChannelSMS
}

// Send delivers an SMS notification.
// TODO: wire a real SMS gateway client behind this.
func (s *Sender) Send(ctx context.Context, out notifications.Outbound) error {
	if !s.config.Enabled {
		slog.Debug("sms sender disabled, skipping", "to", out.To)
		return nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return notifications.NewRetryableError(err)
	}

	slog.Info("sending sms notification (stub)",
		"from", s.config.From,
		"to", out.To,
	)

	return nil
}
