// Package incidents owns the incident lifecycle: it validates and applies
// transitions, writes the audit trail in the same unit of work, and decides
// which events to emit.
package incidents

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/opstrack/incident-relay/internal/domain"
)

// Repository defines the interface for incident and audit storage.
// Saves are version-checked: updating a record whose version no longer
// matches fails with ErrConflict instead of clobbering a concurrent write.
type Repository interface {
	GetActive(ctx context.Context, id int64) (*domain.Incident, error)
	ListActive(ctx context.Context, filters Filters) ([]*domain.Incident, int64, error)
	ListAudit(ctx context.Context, incidentID int64) ([]*domain.AuditEntry, error)

	// Transaction support: incident mutation and its audit entry are
	// committed together.
	BeginTx(ctx context.Context) (pgx.Tx, error)
	CreateTx(ctx context.Context, tx pgx.Tx, inc *domain.Incident) error
	UpdateTx(ctx context.Context, tx pgx.Tx, inc *domain.Incident) error
	CreateAuditTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error
}

// Filters holds options for listing active incidents.
type Filters struct {
	Status   *domain.IncidentStatus
	Priority *domain.IncidentPriority
	Limit    int
	Offset   int
}
