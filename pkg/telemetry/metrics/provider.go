package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProviderMetrics tracks attempts against individual providers.
//
// Metrics:
//   - relay_provider_attempts_total{provider,outcome}
//   - relay_provider_attempt_duration_seconds{provider,outcome}
//   - relay_provider_tokens_total{provider}
//   - relay_provider_cost_usd_total{provider}
//
// Skipped attempts are counted but not timed.
type ProviderMetrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
	cost     *prometheus.CounterVec
}

func newProviderMetrics(namespace string, registry *prometheus.Registry) *ProviderMetrics {
	m := &ProviderMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "attempts_total",
				Help:      "Total provider attempts by outcome, including skips",
			},
			[]string{"provider", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "attempt_duration_seconds",
				Help:      "Latency of invoked provider attempts in seconds",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "outcome"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "tokens_total",
				Help:      "Total tokens attributed to successful replies",
			},
			[]string{"provider"},
		),
		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "cost_usd_total",
				Help:      "Estimated spend in USD",
			},
			[]string{"provider"},
		),
	}
	registry.MustRegister(m.attempts, m.latency, m.tokens, m.cost)
	return m
}
