// Package metrics exposes Prometheus instrumentation for recognition, the
// security overlay and citation allocation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every facewatch collector. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Recognitions by final stage and verdict
	Recognitions *prometheus.CounterVec

	// External recognizer failures by operation
	DelegationFailures *prometheus.CounterVec

	// Recognition latency by final stage
	RecognitionLatency *prometheus.HistogramVec

	// Security events by type
	SecurityEvents *prometheus.CounterVec

	// Fine numbers allocated by method (random, clock, claimed)
	FineNumbers *prometheus.CounterVec

	// Draws needed per random allocation
	AllocationAttempts prometheus.Histogram

	// Enrolled identities
	Identities prometheus.Gauge
}

// New registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Recognitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facewatch_recognitions_total",
			Help: "Total recognitions by stage and verdict",
		}, []string{"stage", "verdict"}),

		DelegationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facewatch_recognizer_failures_total",
			Help: "Failed calls to the external recognizer by operation",
		}, []string{"operation"}),

		RecognitionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "facewatch_recognition_duration_seconds",
			Help:    "Duration of a recognition by the stage that produced the verdict",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		}, []string{"stage"}),

		SecurityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facewatch_security_events_total",
			Help: "Security status transitions by event type",
		}, []string{"type"}),

		FineNumbers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "facewatch_fine_numbers_total",
			Help: "Allocated fine numbers by allocation method",
		}, []string{"method"}),

		AllocationAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "facewatch_fine_number_attempts",
			Help:    "Random draws needed to reserve a fine number",
			Buckets: []float64{1, 2, 3, 5, 10, 50, 100, 500, 1000},
		}),

		Identities: factory.NewGauge(prometheus.GaugeOpts{
			Name: "facewatch_identities",
			Help: "Number of enrolled identities",
		}),
	}
}

// IncRecognition records a finished recognition.
func (m *Metrics) IncRecognition(stage, verdict string) {
	if m != nil {
		m.Recognitions.WithLabelValues(stage, verdict).Inc()
	}
}

// ObserveRecognition records how long a recognition took.
func (m *Metrics) ObserveRecognition(stage string, seconds float64) {
	if m != nil {
		m.RecognitionLatency.WithLabelValues(stage).Observe(seconds)
	}
}

// IncDelegationFailure records a failed recognizer call.
func (m *Metrics) IncDelegationFailure(operation string) {
	if m != nil {
		m.DelegationFailures.WithLabelValues(operation).Inc()
	}
}

// IncSecurityEvent records a status transition.
func (m *Metrics) IncSecurityEvent(eventType string, n int) {
	if m != nil && n > 0 {
		m.SecurityEvents.WithLabelValues(eventType).Add(float64(n))
	}
}

// IncFineNumber records an allocated fine number.
func (m *Metrics) IncFineNumber(method string) {
	if m != nil {
		m.FineNumbers.WithLabelValues(method).Inc()
	}
}

// ObserveAllocationAttempts records the draws a random allocation needed.
func (m *Metrics) ObserveAllocationAttempts(n int) {
	if m != nil {
		m.AllocationAttempts.Observe(float64(n))
	}
}

// SetIdentities updates the enrolled identities gauge.
func (m *Metrics) SetIdentities(n int) {
	if m != nil {
		m.Identities.Set(float64(n))
	}
}
