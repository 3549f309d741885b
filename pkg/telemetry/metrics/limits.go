package metrics

import (
	"fmt"

	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/limits/ratelimit"

	"github.com/prometheus/client_golang/prometheus"
)

// LimitMetrics tracks rate limiting.
type LimitMetrics struct {
	rejected prometheus.Counter
}

func newLimitMetrics(namespace string, registry *prometheus.Registry) *LimitMetrics {
	m := &LimitMetrics{
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "limits",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-session rate limiter",
		}),
	}
	registry.MustRegister(m.rejected)
	return m
}

// WatchLimiter exposes the number of live rate limit windows.
func (c *Collector) WatchLimiter(l *ratelimit.FixedWindow) error {
	if !c.enabled {
		return nil
	}
	g := prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: c.namespace,
			Subsystem: "limits",
			Name:      "active_windows",
			Help:      "Rate limit windows currently tracked",
		},
		func() float64 { return float64(l.Len()) },
	)
	if err := c.registry.Register(g); err != nil {
		return fmt.Errorf("failed to register limiter gauge: %w", err)
	}
	return nil
}

// WatchConversation exposes the conversation store's cache statistics.
func (c *Collector) WatchConversation(store *conversation.Store) error {
	if !c.enabled {
		return nil
	}
	if err := c.registry.Register(newCacheCollector(c.namespace, store)); err != nil {
		return fmt.Errorf("failed to register conversation cache collector: %w", err)
	}
	return nil
}

type cacheCollector struct {
	store *conversation.Store

	entries   *prometheus.Desc
	hits      *prometheus.Desc
	misses    *prometheus.Desc
	evictions *prometheus.Desc
}

func newCacheCollector(namespace string, store *conversation.Store) *cacheCollector {
	labels := []string{"cache"}
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "conversation", name), help, labels, nil)
	}
	return &cacheCollector{
		store:     store,
		entries:   desc("cache_entries", "Entries held in the conversation cache"),
		hits:      desc("cache_hits_total", "Conversation cache hits"),
		misses:    desc("cache_misses_total", "Conversation cache misses"),
		evictions: desc("cache_evictions_total", "Conversation cache evictions"),
	}
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
	ch <- c.hits
	ch <- c.misses
	ch <- c.evictions
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	sessions, windows := c.store.CacheStats()
	for _, s := range []struct {
		name  string
		stats conversation.CacheStats
	}{{"sessions", sessions}, {"windows", windows}} {
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(s.stats.Entries), s.name)
		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.stats.Hits), s.name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.stats.Misses), s.name)
		ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.stats.Evictions), s.name)
	}
}
