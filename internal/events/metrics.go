package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "incidentrelay"

var eventsPublished = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Total events handed to the bus by topic and outcome",
	},
	[]string{"topic", "outcome"},
)

// recordEventPublished records a publish attempt outcome.
func recordEventPublished(topic, outcome string) {
	eventsPublished.WithLabelValues(topic, outcome).Inc()
}
