package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "delivery_coordinator", Name: "jobs_created_total", Help: "Total jobs created"})
	JobTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "delivery_coordinator", Name: "job_transitions_total", Help: "Committed job transitions by target status"},
		[]string{"status"},
	)
	AcceptConflicts      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "delivery_coordinator", Name: "accept_conflicts_total", Help: "Acceptance races lost to another courier"})
	NotificationsEmitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "delivery_coordinator", Name: "notifications_emitted_total", Help: "Proximity notification intents emitted"})
	SamplesAccepted      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "delivery_coordinator", Name: "location_samples_accepted_total", Help: "Location sample upserts applied"})
	SamplesStale         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "delivery_coordinator", Name: "location_samples_stale_total", Help: "Out-of-order location samples discarded"})
	HubDropped           = promauto.NewCounter(prometheus.CounterOpts{Namespace: "delivery_coordinator", Name: "hub_dropped_events_total", Help: "Hub events dropped on slow subscribers"})
	SessionInits         = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "delivery_coordinator", Name: "session_inits_total", Help: "Courier session initialization results"},
		[]string{"state"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "delivery_coordinator", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "delivery_coordinator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
