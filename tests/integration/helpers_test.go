//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/opstrack/incident-relay/internal/domain"
	"github.com/opstrack/incident-relay/internal/testutil"
	"github.com/stretchr/testify/require"
)

type incidentResponse struct {
	Data domain.Incident `json:"data"`
}

type incidentListResponse struct {
	Data struct {
		Items  []domain.Incident `json:"items"`
		Total  int64             `json:"total"`
		Limit  int               `json:"limit"`
		Offset int               `json:"offset"`
	} `json:"data"`
}

type auditResponse struct {
	Data []domain.AuditEntry `json:"data"`
}

type notificationListResponse struct {
	Data struct {
		Items  []domain.Notification `json:"items"`
		Total  int64                 `json:"total"`
		Limit  int                   `json:"limit"`
		Offset int                   `json:"offset"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func createIncident(t *testing.T, client *testutil.Client, title, priority string) domain.Incident {
	t.Helper()

	resp, err := client.POST("/api/v1/incidents", map[string]string{
		"title":       title,
		"description": "integration test incident",
		"priority":    priority,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body incidentResponse
	testutil.DecodeJSON(t, resp, &body)
	return body.Data
}

func setStatus(t *testing.T, client *testutil.Client, id int64, status string) domain.Incident {
	t.Helper()

	resp, err := client.PATCH(fmt.Sprintf("/api/v1/incidents/%d/status", id), map[string]string{
		"status": status,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body incidentResponse
	testutil.DecodeJSON(t, resp, &body)
	return body.Data
}

func assignIncident(t *testing.T, client *testutil.Client, id int64, assignee string) domain.Incident {
	t.Helper()

	resp, err := client.POST(fmt.Sprintf("/api/v1/incidents/%d/assign", id), map[string]string{
		"assigned_to": assignee,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body incidentResponse
	testutil.DecodeJSON(t, resp, &body)
	return body.Data
}

// waitForSentNotifications polls the ledger until match returns at least count
// rows in SENT status, or the timeout passes.
func waitForSentNotifications(t *testing.T, client *testutil.Client, match func(domain.Notification) bool, count int) []domain.Notification {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	var lastMatched []domain.Notification

	for time.Now().Before(deadline) {
		resp, err := client.GET("/api/v1/notifications?status=SENT&limit=100")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body notificationListResponse
		testutil.DecodeJSON(t, resp, &body)

		lastMatched = lastMatched[:0]
		for _, n := range body.Data.Items {
			if match(n) {
				lastMatched = append(lastMatched, n)
			}
		}
		if len(lastMatched) >= count {
			return lastMatched
		}

		time.Sleep(100 * time.Millisecond)
	}

	t.Fatalf("timeout waiting for %d sent notifications, got %d", count, len(lastMatched))
	return nil
}
