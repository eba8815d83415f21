package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/opstrack/incident-relay/internal/pkg/ctxlog"
)

// maxTitleLen is the longest accepted incident title, in characters.
const maxTitleLen = 200

// EventPublisher emits lifecycle events. Fire-and-forget: implementations
// must not block the caller on broker acknowledgment and must never return
// transport failures into the write path.
type EventPublisher interface {
	PublishIncidentEvent(ctx context.Context, eventType domain.EventType, inc *domain.Incident)
}

// Service implements the incident lifecycle.
type Service struct {
	repo      Repository
	publisher EventPublisher
}

// NewService creates a new incident service.
func NewService(repo Repository, publisher EventPublisher) *Service {
	return &Service{repo: repo, publisher: publisher}
}

// CreateInput holds data for creating an incident.
type CreateInput struct {
	Title       string
	Description string
	Priority    domain.IncidentPriority
}

// UpdateInput holds data for updating incident fields. Nil fields are left
// untouched.
type UpdateInput struct {
	Title       *string
	Description *string
	Priority    *domain.IncidentPriority
}

// Create intakes a new incident in OPEN status and emits INCIDENT_CREATED.
func (s *Service) Create(ctx context.Context, input CreateInput, actor string) (*domain.Incident, error) {
	if err := validateTitle(input.Title); err != nil {
		return nil, err
	}
	if !input.Priority.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPriority, input.Priority)
	}

	inc := &domain.Incident{
		Title:       input.Title,
		Description: input.Description,
		Status:      domain.IncidentStatusOpen,
		Priority:    input.Priority,
		CreatedBy:   actor,
	}

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.CreateTx(ctx, tx, inc); err != nil {
			return fmt.Errorf("create incident: %w", err)
		}
		return s.writeAuditTx(ctx, tx, inc.ID, domain.AuditActionCreate, actor, "", snapshot(inc), "incident created")
	})
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("incident created", "incident_id", inc.ID, "priority", inc.Priority)
	s.publisher.PublishIncidentEvent(ctx, domain.EventIncidentCreated, inc)

	return inc, nil
}

// Get retrieves a non-deleted incident by id.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Incident, error) {
	return s.repo.GetActive(ctx, id)
}

// List retrieves non-deleted incidents with pagination and the total count.
func (s *Service) List(ctx context.Context, filters Filters) ([]*domain.Incident, int64, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidStatus, *filters.Status)
	}
	if filters.Priority != nil && !filters.Priority.IsValid() {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidPriority, *filters.Priority)
	}
	return s.repo.ListActive(ctx, filters)
}

// Update replaces the provided fields and emits INCIDENT_UPDATED.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput, actor string) (*domain.Incident, error) {
	if input.Title != nil {
		if err := validateTitle(*input.Title); err != nil {
			return nil, err
		}
	}
	if input.Priority != nil && !input.Priority.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPriority, *input.Priority)
	}

	inc, err := s.repo.GetActive(ctx, id)
	if err != nil {
		return nil, err
	}

	before := snapshot(inc)
	if input.Title != nil {
		inc.Title = *input.Title
	}
	if input.Description != nil {
		inc.Description = *input.Description
	}
	if input.Priority != nil {
		inc.Priority = *input.Priority
	}

	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.UpdateTx(ctx, tx, inc); err != nil {
			return fmt.Errorf("update incident: %w", err)
		}
		return s.writeAuditTx(ctx, tx, inc.ID, domain.AuditActionUpdate, actor, before, snapshot(inc), "fields updated")
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishIncidentEvent(ctx, domain.EventIncidentUpdated, inc)

	return inc, nil
}

// SetStatus moves the incident to target. Only forward moves along
// OPEN < IN_PROGRESS < RESOLVED < CLOSED are legal; setting the current
// status again is an idempotent no-op that writes no audit entry and emits
// no event. resolvedAt and closedAt are set exactly once.
func (s *Service) SetStatus(ctx context.Context, id int64, target domain.IncidentStatus, actor string) (*domain.Incident, error) {
	if !target.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, target)
	}

	inc, err := s.repo.GetActive(ctx, id)
	if err != nil {
		return nil, err
	}

	if inc.Status == target {
		return inc, nil
	}
	if !inc.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, inc.Status, target)
	}

	before := snapshot(inc)
	inc.Status = target

	now := time.Now().UTC()
	if target == domain.IncidentStatusResolved && inc.ResolvedAt == nil {
		inc.ResolvedAt = &now
	}
	if target == domain.IncidentStatusClosed && inc.ClosedAt == nil {
		inc.ClosedAt = &now
	}

	comment := fmt.Sprintf("status changed to %s", target)
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.UpdateTx(ctx, tx, inc); err != nil {
			return fmt.Errorf("update incident: %w", err)
		}
		return s.writeAuditTx(ctx, tx, inc.ID, domain.AuditActionStatusChange, actor, before, snapshot(inc), comment)
	})
	if err != nil {
		return nil, err
	}

	switch target {
	case domain.IncidentStatusResolved:
		s.publisher.PublishIncidentEvent(ctx, domain.EventIncidentResolved, inc)
	case domain.IncidentStatusClosed:
		s.publisher.PublishIncidentEvent(ctx, domain.EventIncidentClosed, inc)
	}

	return inc, nil
}

// Assign sets the assignee and emits INCIDENT_ASSIGNED. An OPEN incident
// auto-advances to IN_PROGRESS; any other status is left unchanged.
func (s *Service) Assign(ctx context.Context, id int64, assignee, actor string) (*domain.Incident, error) {
	if assignee == "" {
		return nil, ErrEmptyAssignee
	}

	inc, err := s.repo.GetActive(ctx, id)
	if err != nil {
		return nil, err
	}

	before := snapshot(inc)
	inc.AssignedTo = &assignee
	if inc.Status == domain.IncidentStatusOpen {
		inc.Status = domain.IncidentStatusInProgress
	}

	comment := fmt.Sprintf("assigned to %s", assignee)
	err = s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.UpdateTx(ctx, tx, inc); err != nil {
			return fmt.Errorf("update incident: %w", err)
		}
		return s.writeAuditTx(ctx, tx, inc.ID, domain.AuditActionAssign, actor, before, snapshot(inc), comment)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishIncidentEvent(ctx, domain.EventIncidentAssigned, inc)

	return inc, nil
}

// SoftDelete marks the incident deleted. The record and its audit trail are
// retained, but the incident disappears from every read and write lookup.
// No event is emitted.
func (s *Service) SoftDelete(ctx context.Context, id int64, actor string) error {
	inc, err := s.repo.GetActive(ctx, id)
	if err != nil {
		return err
	}

	before := snapshot(inc)
	inc.Deleted = true

	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.repo.UpdateTx(ctx, tx, inc); err != nil {
			return fmt.Errorf("delete incident: %w", err)
		}
		return s.writeAuditTx(ctx, tx, inc.ID, domain.AuditActionDelete, actor, before, snapshot(inc), "incident deleted")
	})
}

// AuditTrail returns the audit entries for an incident, oldest first.
// Works for soft-deleted incidents too: history outlives visibility.
func (s *Service) AuditTrail(ctx context.Context, incidentID int64) ([]*domain.AuditEntry, error) {
	return s.repo.ListAudit(ctx, incidentID)
}

// inTx runs fn inside a transaction with commit/rollback handling.
func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			ctxlog.FromContext(ctx).Error("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Service) writeAuditTx(ctx context.Context, tx pgx.Tx, incidentID int64, action domain.AuditAction, actor, oldValue, newValue, comment string) error {
	entry := &domain.AuditEntry{
		IncidentID:  incidentID,
		Action:      action,
		PerformedBy: actor,
		Timestamp:   time.Now().UTC(),
		OldValue:    oldValue,
		NewValue:    newValue,
		Comment:     comment,
	}
	if err := s.repo.CreateAuditTx(ctx, tx, entry); err != nil {
		return fmt.Errorf("create audit entry: %w", err)
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return ErrEmptyTitle
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return ErrTitleTooLong
	}
	return nil
}

// auditSnapshot is the incident view stored in audit old/new values.
type auditSnapshot struct {
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	Status      domain.IncidentStatus   `json:"status"`
	Priority    domain.IncidentPriority `json:"priority"`
	AssignedTo  *string                 `json:"assigned_to,omitempty"`
	Deleted     bool                    `json:"deleted,omitempty"`
}

func snapshot(inc *domain.Incident) string {
	data, err := json.Marshal(auditSnapshot{
		Title:       inc.Title,
		Description: inc.Description,
		Status:      inc.Status,
		Priority:    inc.Priority,
		AssignedTo:  inc.AssignedTo,
		Deleted:     inc.Deleted,
	})
	if err != nil {
		return ""
	}
	return string(data)
}
