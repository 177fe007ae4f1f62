package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bridgemint/core/events"
)

type moduleMetrics struct {
	events   *prometheus.CounterVec
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics
)

// ModuleMetrics returns the lazily-initialised metrics registry shared by the
// RPC layer and the event recorder.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridgemint",
				Subsystem: "engine",
				Name:      "events_total",
				Help:      "Count of engine state transitions segmented by event type.",
			}, []string{"type"}),
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridgemint",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total RPC requests segmented by route and status class.",
			}, []string{"route", "status"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "bridgemint",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total RPC errors segmented by route.",
			}, []string{"route"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "bridgemint",
				Subsystem: "rpc",
				Name:      "request_seconds",
				Help:      "RPC request latency in seconds segmented by route.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
		}
		prometheus.MustRegister(
			moduleRegistry.events,
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// RecordEvent counts one engine event by type.
func (m *moduleMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// RecordRequest counts one RPC request and its latency.
func (m *moduleMetrics) RecordRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	class := "2xx"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	}
	m.requests.WithLabelValues(route, class).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(route).Inc()
	}
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// EventRecorder adapts the metrics registry to the engine event emitter
// interface and forwards every event to an optional downstream emitter.
type EventRecorder struct {
	metrics *moduleMetrics
	next    events.Emitter
}

// NewEventRecorder wires the recorder in front of next. A nil next discards
// events after counting them.
func NewEventRecorder(next events.Emitter) *EventRecorder {
	return &EventRecorder{metrics: ModuleMetrics(), next: next}
}

// Emit implements events.Emitter.
func (r *EventRecorder) Emit(event events.Event) {
	if r == nil || event == nil {
		return
	}
	r.metrics.RecordEvent(event.EventType())
	if r.next != nil {
		r.next.Emit(event)
	}
}
