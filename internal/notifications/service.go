package notifications

import (
	"context"
	"fmt"

	"github.com/opstrack/incident-relay/internal/domain"
)

// Service exposes read access to the notification ledger.
type Service struct {
	repo Repository
}

// NewService creates a new notifications service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns ledger entries matching the filters plus the total count.
func (s *Service) List(ctx context.Context, filters Filters) ([]*domain.Notification, int64, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}

	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	return items, total, nil
}
