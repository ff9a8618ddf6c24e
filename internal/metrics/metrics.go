// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts inbound Messenger events by kind.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easely",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Inbound Messenger events by kind",
		},
		[]string{"kind"},
	)

	// RateLimitedTotal counts events dropped by the per-sender limiter.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "easely",
			Subsystem: "webhook",
			Name:      "rate_limited_total",
			Help:      "Inbound events dropped by the per-sender rate limit",
		},
	)

	// DispatchDuration observes end-to-end dispatch latency.
	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "easely",
			Subsystem: "dispatcher",
			Name:      "duration_seconds",
			Help:      "Time spent handling one inbound event",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"kind"},
	)

	// DispatchErrorsTotal counts events that ended with the generic apology.
	DispatchErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "easely",
			Subsystem: "dispatcher",
			Name:      "errors_total",
			Help:      "Events that failed with an unexpected error",
		},
	)

	// StateTransitionsTotal counts writes of each conversation state.
	StateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easely",
			Subsystem: "dispatcher",
			Name:      "state_transitions_total",
			Help:      "Conversation state writes by target state",
		},
		[]string{"state"},
	)

	// DeferredPromptsTotal counts scheduled prompts by outcome.
	DeferredPromptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easely",
			Subsystem: "dispatcher",
			Name:      "deferred_prompts_total",
			Help:      "Deferred prompts by outcome (scheduled, fired, cancelled)",
		},
		[]string{"outcome"},
	)

	// CanvasRequestsTotal counts Canvas API calls by operation and status.
	CanvasRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easely",
			Subsystem: "canvas",
			Name:      "requests_total",
			Help:      "Canvas API requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	// CanvasCacheTotal counts assignment cache lookups by result.
	CanvasCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easely",
			Subsystem: "canvas",
			Name:      "cache_lookups_total",
			Help:      "Assignment cache lookups (hit, miss)",
		},
		[]string{"result"},
	)

	// GraphSendsTotal counts Send API calls by message type and status.
	GraphSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easely",
			Subsystem: "messenger",
			Name:      "sends_total",
			Help:      "Graph Send API calls by message type and status",
		},
		[]string{"type", "status"},
	)
)
