package notifications

import (
	"fmt"

	"github.com/opstrack/incident-relay/internal/domain"
)

// intent is one delivery an event calls for: who gets told what, and where.
type intent struct {
	channel   domain.NotificationChannel
	recipient string
	subject   string
	body      string
}

// intentsFor derives deliveries from a lifecycle event. Creation, resolution
// and closure notify the reporter; assignment notifies the assignee, with an
// additional SMS page for CRITICAL incidents. Field updates are recorded on
// the bus but produce no deliveries.
func intentsFor(event domain.IncidentEvent) []intent {
	p := event.Payload

	switch event.EventType {
	case domain.EventIncidentCreated:
		return []intent{{
			channel:   domain.ChannelEmail,
			recipient: p.CreatedBy,
			subject:   "New Incident Created: " + p.Title,
			body: fmt.Sprintf(
				"A new incident has been created.\n\nTitle: %s\nCreated by: %s\nPlease review and take appropriate action.",
				p.Title, p.CreatedBy,
			),
		}}

	case domain.EventIncidentAssigned:
		if p.AssignedTo == nil || *p.AssignedTo == "" {
			return nil
		}
		intents := []intent{{
			channel:   domain.ChannelEmail,
			recipient: *p.AssignedTo,
			subject:   "Incident Assigned to You: " + p.Title,
			body: fmt.Sprintf(
				"Incident #%d has been assigned to you.\n\nTitle: %s\nPlease review and begin work.",
				p.IncidentID, p.Title,
			),
		}}
		if p.Priority == domain.PriorityCritical {
			intents = append(intents, intent{
				channel:   domain.ChannelSMS,
				recipient: *p.AssignedTo,
				body: fmt.Sprintf(
					"CRITICAL incident #%d assigned to you: %s",
					p.IncidentID, p.Title,
				),
			})
		}
		return intents

	case domain.EventIncidentResolved:
		return []intent{{
			channel:   domain.ChannelEmail,
			recipient: p.CreatedBy,
			subject:   "Incident Resolved: " + p.Title,
			body: fmt.Sprintf(
				"Incident #%d has been resolved.\n\nTitle: %s\nThank you for your patience.",
				p.IncidentID, p.Title,
			),
		}}

	case domain.EventIncidentClosed:
		return []intent{{
			channel:   domain.ChannelEmail,
			recipient: p.CreatedBy,
			subject:   "Incident Closed: " + p.Title,
			body: fmt.Sprintf(
				"Incident #%d has been closed.\n\nTitle: %s\nNo further action is required.",
				p.IncidentID, p.Title,
			),
		}}
	}

	return nil
}
