package metrics

import (
	"fmt"

	"mercator-hq/relay/pkg/routing"

	"github.com/prometheus/client_golang/prometheus"
)

// RoutingMetrics tracks breaker transitions. Current breaker and health
// state is read from the provider registry at scrape time; see WatchRegistry.
type RoutingMetrics struct {
	transitions *prometheus.CounterVec
}

func newRoutingMetrics(namespace string, registry *prometheus.Registry) *RoutingMetrics {
	m := &RoutingMetrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "routing",
				Name:      "circuit_transitions_total",
				Help:      "Circuit breaker state transitions",
			},
			[]string{"provider", "from", "to"},
		),
	}
	registry.MustRegister(m.transitions)
	return m
}

// WatchRegistry exposes per-provider circuit state, consecutive failures and
// cached health, read from reg on every scrape.
func (c *Collector) WatchRegistry(reg *routing.Registry) error {
	if !c.enabled {
		return nil
	}
	if err := c.registry.Register(newRegistryCollector(c.namespace, reg)); err != nil {
		return fmt.Errorf("failed to register routing collector: %w", err)
	}
	return nil
}

type registryCollector struct {
	reg *routing.Registry

	state    *prometheus.Desc
	failures *prometheus.Desc
	healthy  *prometheus.Desc
}

func newRegistryCollector(namespace string, reg *routing.Registry) *registryCollector {
	labels := []string{"provider"}
	return &registryCollector{
		reg: reg,
		state: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "routing", "circuit_state"),
			"Circuit breaker state (0 closed, 1 open, 2 half-open)",
			labels, nil,
		),
		failures: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "routing", "consecutive_failures"),
			"Consecutive failures counted by the circuit breaker",
			labels, nil,
		),
		healthy: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "routing", "provider_healthy"),
			"Last cached health reading (1 healthy, 0 unhealthy or in maintenance)",
			labels, nil,
		),
	}
}

func (r *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.state
	ch <- r.failures
	ch <- r.healthy
}

func (r *registryCollector) Collect(ch chan<- prometheus.Metric) {
	health := r.reg.Health()
	for _, e := range r.reg.Entries() {
		name := e.Name()
		snap := e.Breaker.Snapshot()
		ch <- prometheus.MustNewConstMetric(r.state, prometheus.GaugeValue, float64(snap.State), name)
		ch <- prometheus.MustNewConstMetric(r.failures, prometheus.GaugeValue, float64(snap.ConsecutiveFailures), name)

		// Providers never probed are left out rather than reported unhealthy.
		st, ok := health.Status(name)
		if !ok && !st.Maintenance {
			continue
		}
		healthy := 0.0
		if st.OK && !st.Maintenance {
			healthy = 1
		}
		ch <- prometheus.MustNewConstMetric(r.healthy, prometheus.GaugeValue, healthy, name)
	}
}
