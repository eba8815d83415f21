package domain

import "time"

// EventType identifies the lifecycle transition an IncidentEvent describes.
type EventType string

// Event types, one per emitting lifecycle transition.
const (
	EventIncidentCreated  EventType = "INCIDENT_CREATED"
	EventIncidentUpdated  EventType = "INCIDENT_UPDATED"
	EventIncidentAssigned EventType = "INCIDENT_ASSIGNED"
	EventIncidentResolved EventType = "INCIDENT_RESOLVED"
	EventIncidentClosed   EventType = "INCIDENT_CLOSED"
)

// eventTopics maps each event type 1:1 to its bus topic.
var eventTopics = map[EventType]string{
	EventIncidentCreated:  "incident-created",
	EventIncidentUpdated:  "incident-updated",
	EventIncidentAssigned: "incident-assigned",
	EventIncidentResolved: "incident-resolved",
	EventIncidentClosed:   "incident-closed",
}

// IsValid checks if the event type is known.
func (t EventType) IsValid() bool {
	_, ok := eventTopics[t]
	return ok
}

// Topic returns the bus topic the event type is published to.
// Empty string for unknown types.
func (t EventType) Topic() string {
	return eventTopics[t]
}

// EventTopics returns all topics carrying incident lifecycle events.
func EventTopics() []string {
	return []string{
		EventIncidentCreated.Topic(),
		EventIncidentUpdated.Topic(),
		EventIncidentAssigned.Topic(),
		EventIncidentResolved.Topic(),
		EventIncidentClosed.Topic(),
	}
}

// IncidentEvent is the immutable envelope published per lifecycle transition.
// It carries a snapshot of the incident at emission time, never a reference.
type IncidentEvent struct {
	EventID   string               `json:"eventId"`
	EventType EventType            `json:"eventType"`
	Timestamp time.Time            `json:"timestamp"`
	Payload   IncidentEventPayload `json:"payload"`
}

// IncidentEventPayload is the incident snapshot inside an event envelope.
type IncidentEventPayload struct {
	IncidentID int64            `json:"incidentId"`
	Title      string           `json:"title"`
	Status     IncidentStatus   `json:"status"`
	Priority   IncidentPriority `json:"priority"`
	AssignedTo *string          `json:"assignedTo"`
	CreatedBy  string           `json:"createdBy"`
}

// SnapshotPayload builds an event payload from the incident's current state.
func SnapshotPayload(inc *Incident) IncidentEventPayload {
	return IncidentEventPayload{
		IncidentID: inc.ID,
		Title:      inc.Title,
		Status:     inc.Status,
		Priority:   inc.Priority,
		AssignedTo: inc.AssignedTo,
		CreatedBy:  inc.CreatedBy,
	}
}
