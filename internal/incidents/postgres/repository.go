// Package postgres provides the PostgreSQL implementation of the incidents
// repository.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/opstrack/incident-relay/internal/incidents"
)

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const incidentColumns = `id, title, description, status, priority, assigned_to, created_by,
	created_at, updated_at, resolved_at, closed_at, deleted, version`

// GetActive retrieves a non-deleted incident by id.
func (r *Repository) GetActive(ctx context.Context, id int64) (*domain.Incident, error) {
	query := `
		SELECT ` + incidentColumns + `
		FROM incidents
		WHERE id = $1 AND NOT deleted
	`
	inc, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	return inc, nil
}

// ListActive retrieves non-deleted incidents with optional filters, newest
// first, plus the total matching count.
func (r *Repository) ListActive(ctx context.Context, filters incidents.Filters) ([]*domain.Incident, int64, error) {
	where := `NOT deleted`
	args := []any{}

	if filters.Status != nil {
		args = append(args, *filters.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.Priority != nil {
		args = append(args, *filters.Priority)
		where += fmt.Sprintf(" AND priority = $%d", len(args))
	}

	var total int64
	countQuery := `SELECT COUNT(*) FROM incidents WHERE ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	args = append(args, filters.Limit)
	limitPos := len(args)
	args = append(args, filters.Offset)
	offsetPos := len(args)

	query := fmt.Sprintf(`
		SELECT `+incidentColumns+`
		FROM incidents
		WHERE `+where+`
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, limitPos, offsetPos)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	result := make([]*domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan incident: %w", err)
		}
		result = append(result, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate incidents: %w", err)
	}

	return result, total, nil
}

// ListAudit retrieves audit entries for an incident, oldest first. Does not
// filter on the deleted flag: the audit trail stays readable after a soft
// delete.
func (r *Repository) ListAudit(ctx context.Context, incidentID int64) ([]*domain.AuditEntry, error) {
	query := `
		SELECT id, incident_id, action, performed_by, timestamp, old_value, new_value, comment
		FROM incident_audit
		WHERE incident_id = $1
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()

	entries := make([]*domain.AuditEntry, 0)
	for rows.Next() {
		var e domain.AuditEntry
		err := rows.Scan(
			&e.ID,
			&e.IncidentID,
			&e.Action,
			&e.PerformedBy,
			&e.Timestamp,
			&e.OldValue,
			&e.NewValue,
			&e.Comment,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}

	return entries, nil
}

// BeginTx starts a transaction.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.db.Begin(ctx)
}

// CreateTx inserts a new incident within the transaction, filling the
// server-generated fields.
func (r *Repository) CreateTx(ctx context.Context, tx pgx.Tx, inc *domain.Incident) error {
	query := `
		INSERT INTO incidents (title, description, status, priority, assigned_to, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at, version
	`
	return tx.QueryRow(ctx, query,
		inc.Title,
		inc.Description,
		inc.Status,
		inc.Priority,
		inc.AssignedTo,
		inc.CreatedBy,
	).Scan(&inc.ID, &inc.CreatedAt, &inc.UpdatedAt, &inc.Version)
}

// UpdateTx saves the incident within the transaction, guarded by the version
// the caller loaded. Zero rows means another writer got there first (or the
// record vanished) and surfaces as ErrConflict.
func (r *Repository) UpdateTx(ctx context.Context, tx pgx.Tx, inc *domain.Incident) error {
	query := `
		UPDATE incidents
		SET title = $2, description = $3, status = $4, priority = $5, assigned_to = $6,
			resolved_at = $7, closed_at = $8, deleted = $9,
			version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $10
		RETURNING updated_at, version
	`
	err := tx.QueryRow(ctx, query,
		inc.ID,
		inc.Title,
		inc.Description,
		inc.Status,
		inc.Priority,
		inc.AssignedTo,
		inc.ResolvedAt,
		inc.ClosedAt,
		inc.Deleted,
		inc.Version,
	).Scan(&inc.UpdatedAt, &inc.Version)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return incidents.ErrConflict
		}
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

// CreateAuditTx appends an audit entry within the transaction.
func (r *Repository) CreateAuditTx(ctx context.Context, tx pgx.Tx, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO incident_audit (incident_id, action, performed_by, timestamp, old_value, new_value, comment)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return tx.QueryRow(ctx, query,
		entry.IncidentID,
		entry.Action,
		entry.PerformedBy,
		entry.Timestamp,
		entry.OldValue,
		entry.NewValue,
		entry.Comment,
	).Scan(&entry.ID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*domain.Incident, error) {
	var inc domain.Incident
	err := row.Scan(
		&inc.ID,
		&inc.Title,
		&inc.Description,
		&inc.Status,
		&inc.Priority,
		&inc.AssignedTo,
		&inc.CreatedBy,
		&inc.CreatedAt,
		&inc.UpdatedAt,
		&inc.ResolvedAt,
		&inc.ClosedAt,
		&inc.Deleted,
		&inc.Version,
	)
	if err != nil {
		return nil, err
	}
	return &inc, nil
}
