// Package metrics holds the Prometheus instruments shared by the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "events_published_total",
		Help:      "Events published on the local bus, by severity.",
	}, []string{"severity"})

	HandlerFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "event_handler_failures_total",
		Help:      "Event handlers that returned an error or panicked.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "events_dropped_total",
		Help:      "Events dropped by PublishNowait because the bus was closed.",
	})

	RelayMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "relay_messages_total",
		Help:      "Messages sent to or received from the cross-instance relay.",
	}, []string{"kind", "direction"})

	RelayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "relay_errors_total",
		Help:      "Relay publish failures and undecodable relay messages.",
	}, []string{"kind"})

	Anomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "anomalies_total",
		Help:      "Non-suppressed anomalies, by severity.",
	}, []string{"severity"})

	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "alerts_fired_total",
		Help:      "Alerts created by the alert engine, by severity.",
	}, []string{"severity"})

	ChannelDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "channel_deliveries_total",
		Help:      "Notification channel deliveries, by channel and result.",
	}, []string{"channel", "result"})

	TasksEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "tasks_enqueued_total",
		Help:      "Tasks pushed onto the task queue.",
	})

	TasksDequeued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetwatch",
		Name:      "tasks_dequeued_total",
		Help:      "Tasks popped from the task queue.",
	})
)
