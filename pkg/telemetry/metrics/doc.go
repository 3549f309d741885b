// Package metrics exposes the relay's Prometheus metrics.
//
// A Collector owns a private registry and groups its series by subsystem:
//
//   - dispatch: ProcessMessage outcomes and end-to-end latency
//   - provider: attempts, attempt latency, token and cost counters
//   - routing: circuit breaker state and cached health, read on scrape
//   - limits: rate limit rejections and live bucket count
//   - conversation: session and window cache statistics, read on scrape
//   - audit: dispatch records dropped by the async recorder
//
// The Collector satisfies dispatch.Metrics and is passed to the dispatcher
// directly:
//
//	collector := metrics.NewCollector(&cfg.Metrics, nil)
//	d, err := dispatch.New(dispatch.Config{..., Metrics: collector})
//	mux.Handle(cfg.Metrics.Path, collector.Handler())
//
// Scrape-time collectors for routing, limits and conversation state are
// attached with Watch* once those components exist.
package metrics
