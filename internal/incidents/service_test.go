package incidents

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx for the parts the service touches.
type fakeTx struct {
	pgx.Tx
}

func (f *fakeTx) Commit(_ context.Context) error   { return nil }
func (f *fakeTx) Rollback(_ context.Context) error { return pgx.ErrTxClosed }

type mockRepo struct {
	incidents map[int64]*domain.Incident
	audits    []*domain.AuditEntry
	nextID    int64

	updateErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{incidents: make(map[int64]*domain.Incident)}
}

func (m *mockRepo) GetActive(_ context.Context, id int64) (*domain.Incident, error) {
	inc, ok := m.incidents[id]
	if !ok || inc.Deleted {
		return nil, ErrNotFound
	}
	clone := *inc
	return &clone, nil
}

func (m *mockRepo) ListActive(_ context.Context, filters Filters) ([]*domain.Incident, int64, error) {
	result := make([]*domain.Incident, 0)
	for _, inc := range m.incidents {
		if inc.Deleted {
			continue
		}
		if filters.Status != nil && inc.Status != *filters.Status {
			continue
		}
		if filters.Priority != nil && inc.Priority != *filters.Priority {
			continue
		}
		clone := *inc
		result = append(result, &clone)
	}
	return result, int64(len(result)), nil
}

func (m *mockRepo) ListAudit(_ context.Context, incidentID int64) ([]*domain.AuditEntry, error) {
	entries := make([]*domain.AuditEntry, 0)
	for _, e := range m.audits {
		if e.IncidentID == incidentID {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (m *mockRepo) BeginTx(_ context.Context) (pgx.Tx, error) {
	return &fakeTx{}, nil
}

func (m *mockRepo) CreateTx(_ context.Context, _ pgx.Tx, inc *domain.Incident) error {
	m.nextID++
	inc.ID = m.nextID
	inc.Version = 1
	clone := *inc
	m.incidents[inc.ID] = &clone
	return nil
}

func (m *mockRepo) UpdateTx(_ context.Context, _ pgx.Tx, inc *domain.Incident) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.incidents[inc.ID]
	if !ok || stored.Version != inc.Version {
		return ErrConflict
	}
	inc.Version++
	clone := *inc
	m.incidents[inc.ID] = &clone
	return nil
}

func (m *mockRepo) CreateAuditTx(_ context.Context, _ pgx.Tx, entry *domain.AuditEntry) error {
	entry.ID = int64(len(m.audits) + 1)
	m.audits = append(m.audits, entry)
	return nil
}

type publishedEvent struct {
	eventType domain.EventType
	incident  domain.Incident
}

type mockPublisher struct {
	events []publishedEvent
}

func (m *mockPublisher) PublishIncidentEvent(_ context.Context, eventType domain.EventType, inc *domain.Incident) {
	m.events = append(m.events, publishedEvent{eventType: eventType, incident: *inc})
}

func newTestService() (*Service, *mockRepo, *mockPublisher) {
	repo := newMockRepo()
	publisher := &mockPublisher{}
	return NewService(repo, publisher), repo, publisher
}

func createIncident(t *testing.T, svc *Service) *domain.Incident {
	t.Helper()

	inc, err := svc.Create(context.Background(), CreateInput{
		Title:    "Database down",
		Priority: domain.PriorityHigh,
	}, "alice")
	require.NoError(t, err)
	return inc
}

func TestService_Create(t *testing.T) {
	svc, repo, publisher := newTestService()

	inc, err := svc.Create(context.Background(), CreateInput{
		Title:       "Database down",
		Description: "primary is unreachable",
		Priority:    domain.PriorityCritical,
	}, "alice")

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusOpen, inc.Status)
	assert.Equal(t, "alice", inc.CreatedBy)
	assert.Nil(t, inc.AssignedTo)
	assert.NotZero(t, inc.ID)

	require.Len(t, publisher.events, 1)
	assert.Equal(t, domain.EventIncidentCreated, publisher.events[0].eventType)

	require.Len(t, repo.audits, 1)
	assert.Equal(t, domain.AuditActionCreate, repo.audits[0].Action)
	assert.Equal(t, "alice", repo.audits[0].PerformedBy)
	assert.Empty(t, repo.audits[0].OldValue)
	assert.Contains(t, repo.audits[0].NewValue, "Database down")
}

func TestService_Create_Validation(t *testing.T) {
	svc, _, publisher := newTestService()

	tests := []struct {
		name    string
		input   CreateInput
		wantErr error
	}{
		{
			name:    "empty title",
			input:   CreateInput{Title: "", Priority: domain.PriorityLow},
			wantErr: ErrEmptyTitle,
		},
		{
			name:    "title too long",
			input:   CreateInput{Title: strings.Repeat("x", 201), Priority: domain.PriorityLow},
			wantErr: ErrTitleTooLong,
		},
		{
			name:    "invalid priority",
			input:   CreateInput{Title: "ok", Priority: "URGENT"},
			wantErr: ErrInvalidPriority,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.input, "alice")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.Empty(t, publisher.events, "invalid input must not emit events")
}

func TestService_Create_TitleAtLimit(t *testing.T) {
	svc, _, _ := newTestService()

	inc, err := svc.Create(context.Background(), CreateInput{
		Title:    strings.Repeat("x", 200),
		Priority: domain.PriorityLow,
	}, "alice")

	require.NoError(t, err)
	assert.NotZero(t, inc.ID)
}

func TestService_Assign_AdvancesOpenToInProgress(t *testing.T) {
	svc, repo, publisher := newTestService()
	inc := createIncident(t, svc)

	updated, err := svc.Assign(context.Background(), inc.ID, "bob", "alice")

	require.NoError(t, err)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, "bob", *updated.AssignedTo)
	assert.Equal(t, domain.IncidentStatusInProgress, updated.Status)

	require.Len(t, publisher.events, 2)
	last := publisher.events[1]
	assert.Equal(t, domain.EventIncidentAssigned, last.eventType)
	assert.Equal(t, domain.IncidentStatusInProgress, last.incident.Status, "event carries post-transition snapshot")

	assert.Equal(t, domain.AuditActionAssign, repo.audits[1].Action)
}

func TestService_Assign_NonOpenKeepsStatus(t *testing.T) {
	svc, _, publisher := newTestService()
	inc := createIncident(t, svc)

	_, err := svc.SetStatus(context.Background(), inc.ID, domain.IncidentStatusResolved, "alice")
	require.NoError(t, err)

	updated, err := svc.Assign(context.Background(), inc.ID, "bob", "alice")

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, updated.Status)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, "bob", *updated.AssignedTo)

	last := publisher.events[len(publisher.events)-1]
	assert.Equal(t, domain.EventIncidentAssigned, last.eventType)
}

func TestService_Assign_EmptyAssignee(t *testing.T) {
	svc, _, _ := newTestService()
	inc := createIncident(t, svc)

	_, err := svc.Assign(context.Background(), inc.ID, "", "alice")
	assert.ErrorIs(t, err, ErrEmptyAssignee)
}

func TestService_SetStatus_ResolvedSetsTimestampOnce(t *testing.T) {
	svc, repo, publisher := newTestService()
	inc := createIncident(t, svc)

	resolved, err := svc.SetStatus(context.Background(), inc.ID, domain.IncidentStatusResolved, "alice")
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	firstResolvedAt := *resolved.ResolvedAt

	require.Len(t, publisher.events, 2)
	assert.Equal(t, domain.EventIncidentResolved, publisher.events[1].eventType)

	auditCount := len(repo.audits)

	// Setting the same status again is an idempotent no-op.
	again, err := svc.SetStatus(context.Background(), inc.ID, domain.IncidentStatusResolved, "alice")
	require.NoError(t, err)
	require.NotNil(t, again.ResolvedAt)
	assert.Equal(t, firstResolvedAt, *again.ResolvedAt)
	assert.Len(t, publisher.events, 2, "no event re-emitted")
	assert.Len(t, repo.audits, auditCount, "no audit entry written")
}

func TestService_SetStatus_ClosedSetsTimestamp(t *testing.T) {
	svc, _, publisher := newTestService()
	inc := createIncident(t, svc)

	closed, err := svc.SetStatus(context.Background(), inc.ID, domain.IncidentStatusClosed, "alice")

	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	assert.Equal(t, domain.EventIncidentClosed, publisher.events[1].eventType)
}

func TestService_SetStatus_ForwardSkipAllowed(t *testing.T) {
	svc, _, _ := newTestService()
	inc := createIncident(t, svc)

	resolved, err := svc.SetStatus(context.Background(), inc.ID, domain.IncidentStatusResolved, "alice")

	require.NoError(t, err)
	assert.Equal(t, domain.IncidentStatusResolved, resolved.Status)
}

func TestService_SetStatus_BackwardRejected(t *testing.T) {
	svc, _, publisher := newTestService()
	inc := createIncident(t, svc)

	_, err := svc.SetStatus(context.Background(), inc.ID, domain.IncidentStatusResolved, "alice")
	require.NoError(t, err)

	_, err = svc.SetStatus(context.Background(), inc.ID, domain.IncidentStatusInProgress, "alice")

	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, publisher.events, 2, "rejected transition must not emit")
}

func TestService_SetStatus_IntermediateNoEvent(t *testing.T) {
	svc, _, publisher := newTestService()
	inc := createIncident(t, svc)

	_, err := svc.SetStatus(context.Background(), inc.ID, domain.IncidentStatusInProgress, "alice")

	require.NoError(t, err)
	assert.Len(t, publisher.events, 1, "moving to IN_PROGRESS emits nothing")
}

func TestService_SetStatus_Unknown(t *testing.T) {
	svc, _, _ := newTestService()
	inc := createIncident(t, svc)

	_, err := svc.SetStatus(context.Background(), inc.ID, "ARCHIVED", "alice")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestService_Update(t *testing.T) {
	svc, repo, publisher := newTestService()
	inc := createIncident(t, svc)

	newTitle := "Database degraded"
	newPriority := domain.PriorityMedium
	updated, err := svc.Update(context.Background(), inc.ID, UpdateInput{
		Title:    &newTitle,
		Priority: &newPriority,
	}, "bob")

	require.NoError(t, err)
	assert.Equal(t, "Database degraded", updated.Title)
	assert.Equal(t, domain.PriorityMedium, updated.Priority)

	last := publisher.events[len(publisher.events)-1]
	assert.Equal(t, domain.EventIncidentUpdated, last.eventType)

	audit := repo.audits[len(repo.audits)-1]
	assert.Equal(t, domain.AuditActionUpdate, audit.Action)
	assert.Contains(t, audit.OldValue, "Database down")
	assert.Contains(t, audit.NewValue, "Database degraded")
}

func TestService_Update_Conflict(t *testing.T) {
	svc, repo, _ := newTestService()
	inc := createIncident(t, svc)

	repo.updateErr = ErrConflict

	newTitle := "changed"
	_, err := svc.Update(context.Background(), inc.ID, UpdateInput{Title: &newTitle}, "bob")

	assert.ErrorIs(t, err, ErrConflict)
}

func TestService_SoftDelete(t *testing.T) {
	svc, repo, publisher := newTestService()
	inc := createIncident(t, svc)

	require.NoError(t, svc.SoftDelete(context.Background(), inc.ID, "alice"))

	_, err := svc.Get(context.Background(), inc.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	items, total, err := svc.List(context.Background(), Filters{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Zero(t, total)

	// History outlives visibility.
	entries, err := svc.AuditTrail(context.Background(), inc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditActionDelete, entries[1].Action)

	assert.Len(t, publisher.events, 1, "deletion emits no event")
	assert.True(t, repo.incidents[inc.ID].Deleted, "record is retained")
}

func TestService_SoftDelete_AlreadyDeleted(t *testing.T) {
	svc, _, _ := newTestService()
	inc := createIncident(t, svc)

	require.NoError(t, svc.SoftDelete(context.Background(), inc.ID, "alice"))

	err := svc.SoftDelete(context.Background(), inc.ID, "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_List_InvalidFilters(t *testing.T) {
	svc, _, _ := newTestService()

	badStatus := domain.IncidentStatus("ARCHIVED")
	_, _, err := svc.List(context.Background(), Filters{Status: &badStatus})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	badPriority := domain.IncidentPriority("URGENT")
	_, _, err = svc.List(context.Background(), Filters{Priority: &badPriority})
	assert.ErrorIs(t, err, ErrInvalidPriority)
}

func TestService_AuditTrail_PerMutation(t *testing.T) {
	svc, _, _ := newTestService()
	inc := createIncident(t, svc)

	_, err := svc.Assign(context.Background(), inc.ID, "bob", "alice")
	require.NoError(t, err)
	_, err = svc.SetStatus(context.Background(), inc.ID, domain.IncidentStatusResolved, "bob")
	require.NoError(t, err)

	entries, err := svc.AuditTrail(context.Background(), inc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, domain.AuditActionCreate, entries[0].Action)
	assert.Equal(t, domain.AuditActionAssign, entries[1].Action)
	assert.Equal(t, domain.AuditActionStatusChange, entries[2].Action)
	assert.Equal(t, "bob", entries[2].PerformedBy)
}
