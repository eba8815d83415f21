package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incidentrelay"

var (
	eventsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "events_consumed_total",
			Help:      "Total lifecycle events consumed from the bus",
		},
		[]string{"topic", "outcome"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total notification deliveries attempted",
		},
		[]string{"channel", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to send a notification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	retriesSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "retries_swept_total",
			Help:      "Total failed deliveries re-attempted by the retry sweep",
		},
	)
)

// recordEventConsumed records a consumed event metric.
func recordEventConsumed(topic, outcome string) {
	eventsConsumed.WithLabelValues(topic, outcome).Inc()
}

// recordNotificationSent records a delivery attempt metric.
func recordNotificationSent(channel, status string) {
	notificationsSent.WithLabelValues(channel, status).Inc()
}

// recordNotificationDuration records notification send duration.
func recordNotificationDuration(channel string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// recordRetriesSwept records the number of rows re-attempted by a sweep.
func recordRetriesSwept(count int) {
	retriesSwept.Add(float64(count))
}
