package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventType_Topic(t *testing.T) {
	tests := []struct {
		eventType EventType
		topic     string
	}{
		{EventIncidentCreated, "incident-created"},
		{EventIncidentUpdated, "incident-updated"},
		{EventIncidentAssigned, "incident-assigned"},
		{EventIncidentResolved, "incident-resolved"},
		{EventIncidentClosed, "incident-closed"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.topic, tt.eventType.Topic())
	}

	assert.Empty(t, EventType("INCIDENT_ESCALATED").Topic())
}

func TestIncidentEvent_WireFormat(t *testing.T) {
	assignee := "bob"
	event := IncidentEvent{
		EventID:   "e1",
		EventType: EventIncidentAssigned,
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Payload: IncidentEventPayload{
			IncidentID: 7,
			Title:      "Database down",
			Status:     IncidentStatusInProgress,
			Priority:   PriorityHigh,
			AssignedTo: &assignee,
			CreatedBy:  "alice",
		},
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "e1", raw["eventId"])
	assert.Equal(t, "INCIDENT_ASSIGNED", raw["eventType"])
	assert.Contains(t, raw, "timestamp")

	payload, ok := raw["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(7), payload["incidentId"])
	assert.Equal(t, "bob", payload["assignedTo"])
	assert.Equal(t, "alice", payload["createdBy"])
}

func TestSnapshotPayload_DetachedFromIncident(t *testing.T) {
	inc := &Incident{
		ID:        7,
		Title:     "Database down",
		Status:    IncidentStatusOpen,
		Priority:  PriorityHigh,
		CreatedBy: "alice",
	}

	payload := SnapshotPayload(inc)

	inc.Title = "changed"
	inc.Status = IncidentStatusClosed

	assert.Equal(t, "Database down", payload.Title)
	assert.Equal(t, IncidentStatusOpen, payload.Status)
}
