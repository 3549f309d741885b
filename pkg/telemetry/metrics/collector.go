package metrics

import (
	"time"

	"mercator-hq/relay/pkg/audit"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/routing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Collector records relay metrics. A Collector built from a disabled config
// accepts every call and records nothing.
type Collector struct {
	enabled  bool
	registry *prometheus.Registry

	dispatch *DispatchMetrics
	provider *ProviderMetrics
	routing  *RoutingMetrics
	limits   *LimitMetrics
	audit    *AuditMetrics

	namespace string
}

var _ dispatch.Metrics = (*Collector)(nil)

// NewCollector creates a collector. A nil registry gets a fresh one with the
// Go runtime and process collectors installed.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	namespace := config.DefaultMetricsNamespace
	enabled := true
	if cfg != nil {
		enabled = cfg.Enabled
		if cfg.Namespace != "" {
			namespace = cfg.Namespace
		}
	}

	c := &Collector{
		enabled:   enabled,
		registry:  registry,
		namespace: namespace,
	}
	if !enabled {
		return c
	}

	c.dispatch = newDispatchMetrics(namespace, registry)
	c.provider = newProviderMetrics(namespace, registry)
	c.routing = newRoutingMetrics(namespace, registry)
	c.limits = newLimitMetrics(namespace, registry)
	c.audit = newAuditMetrics(namespace, registry)
	return c
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveDispatch records one finished ProcessMessage call.
func (c *Collector) ObserveDispatch(outcome audit.Outcome, elapsed time.Duration) {
	if !c.enabled {
		return
	}
	c.dispatch.total.WithLabelValues(string(outcome)).Inc()
	c.dispatch.duration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// ObserveAttempt records one provider attempt or skip.
func (c *Collector) ObserveAttempt(provider string, outcome dispatch.AttemptOutcome, elapsed time.Duration) {
	if !c.enabled {
		return
	}
	c.provider.attempts.WithLabelValues(provider, string(outcome)).Inc()
	if outcome.Invoked() {
		c.provider.latency.WithLabelValues(provider, string(outcome)).Observe(elapsed.Seconds())
	}
}

// ObserveUsage records tokens and estimated cost attributed to a provider.
func (c *Collector) ObserveUsage(provider string, tokens int, cost float64) {
	if !c.enabled {
		return
	}
	if tokens > 0 {
		c.provider.tokens.WithLabelValues(provider).Add(float64(tokens))
	}
	if cost > 0 {
		c.provider.cost.WithLabelValues(provider).Add(cost)
	}
}

// IncRateLimited counts a request rejected by the rate limiter.
func (c *Collector) IncRateLimited() {
	if !c.enabled {
		return
	}
	c.limits.rejected.Inc()
}

// IncAuditDropped counts a dispatch record the recorder could not buffer.
func (c *Collector) IncAuditDropped() {
	if !c.enabled {
		return
	}
	c.audit.dropped.Inc()
}

// BreakerStateChanged counts a circuit transition. It matches
// routing.StateChangeFunc.
func (c *Collector) BreakerStateChanged(provider string, from, to routing.State) {
	if !c.enabled {
		return
	}
	c.routing.transitions.WithLabelValues(provider, from.String(), to.String()).Inc()
}
