package domain

import "time"

// IncidentStatus represents the lifecycle state of an incident.
type IncidentStatus string

// Incident statuses, in lifecycle order.
const (
	IncidentStatusOpen       IncidentStatus = "OPEN"
	IncidentStatusInProgress IncidentStatus = "IN_PROGRESS"
	IncidentStatusResolved   IncidentStatus = "RESOLVED"
	IncidentStatusClosed     IncidentStatus = "CLOSED"
)

// statusRank orders statuses along the lifecycle. Higher rank means later.
var statusRank = map[IncidentStatus]int{
	IncidentStatusOpen:       0,
	IncidentStatusInProgress: 1,
	IncidentStatusResolved:   2,
	IncidentStatusClosed:     3,
}

// IsValid checks if the status is a known lifecycle state.
func (s IncidentStatus) IsValid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransitionTo reports whether moving from s to target is a legal
// lifecycle transition. Only strictly forward moves are legal; skipping
// intermediate states is allowed, moving backward or staying in place is not.
func (s IncidentStatus) CanTransitionTo(target IncidentStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[target]
	if !ok {
		return false
	}
	return to > from
}

// IsTerminal reports whether the status ends the lifecycle.
func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusClosed
}

// IncidentPriority represents the priority level of an incident.
type IncidentPriority string

// Priority levels.
const (
	PriorityLow      IncidentPriority = "LOW"
	PriorityMedium   IncidentPriority = "MEDIUM"
	PriorityHigh     IncidentPriority = "HIGH"
	PriorityCritical IncidentPriority = "CRITICAL"
)

// IsValid checks if the priority is a known level.
func (p IncidentPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Incident represents a tracked operational incident.
type Incident struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Status      IncidentStatus   `json:"status"`
	Priority    IncidentPriority `json:"priority"`
	AssignedTo  *string          `json:"assigned_to"`
	CreatedBy   string           `json:"created_by"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	ResolvedAt  *time.Time       `json:"resolved_at"`
	ClosedAt    *time.Time       `json:"closed_at"`
	Deleted     bool             `json:"-"`
	// Version guards load-mutate-save cycles. Bumped on every save;
	// a save with a stale version fails instead of clobbering.
	Version int64 `json:"-"`
}
