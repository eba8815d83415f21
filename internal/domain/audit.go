package domain

import "time"

// AuditAction identifies the mutating operation an audit entry records.
type AuditAction string

// Audit actions.
const (
	AuditActionCreate       AuditAction = "CREATE"
	AuditActionUpdate       AuditAction = "UPDATE"
	AuditActionStatusChange AuditAction = "STATUS_CHANGE"
	AuditActionAssign       AuditAction = "ASSIGN"
	AuditActionDelete       AuditAction = "DELETE"
)

// AuditEntry is an append-only record of one mutating operation on an
// incident. Written in the same transaction as the state change itself;
// never updated or deleted afterwards.
type AuditEntry struct {
	ID          int64       `json:"id"`
	IncidentID  int64       `json:"incident_id"`
	Action      AuditAction `json:"action"`
	PerformedBy string      `json:"performed_by"`
	Timestamp   time.Time   `json:"timestamp"`
	OldValue    string      `json:"old_value,omitempty"`
	NewValue    string      `json:"new_value,omitempty"`
	Comment     string      `json:"comment,omitempty"`
}
