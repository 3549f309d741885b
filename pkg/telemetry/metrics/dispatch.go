package metrics

import "github.com/prometheus/client_golang/prometheus"

// DispatchMetrics tracks ProcessMessage calls.
//
// Metrics:
//   - relay_dispatch_requests_total{outcome}
//   - relay_dispatch_duration_seconds{outcome}
type DispatchMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newDispatchMetrics(namespace string, registry *prometheus.Registry) *DispatchMetrics {
	m := &DispatchMetrics{
		total: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "requests_total",
				Help:      "Total number of processed messages by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duration_seconds",
				Help:      "End-to-end message processing latency in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
	}
	registry.MustRegister(m.total, m.duration)
	return m
}

// AuditMetrics tracks the async dispatch recorder.
type AuditMetrics struct {
	dropped prometheus.Counter
}

func newAuditMetrics(namespace string, registry *prometheus.Registry) *AuditMetrics {
	m := &AuditMetrics{
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "records_dropped_total",
			Help:      "Dispatch records dropped because the recorder buffer was full",
		}),
	}
	registry.MustRegister(m.dropped)
	return m
}
