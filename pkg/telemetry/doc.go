// Package telemetry groups the relay's observability packages.
//
// # Components
//
//   - logging: slog setup with request context fields and credential redaction
//   - metrics: Prometheus collectors for dispatch, providers, breakers,
//     rate limiting and the conversation cache
//   - tracing: OpenTelemetry tracer provider with an optional OTLP/gRPC exporter
//   - health: liveness, readiness and version handlers
//
// # Usage
//
//	logger, err := logging.New(logging.FromConfig(&cfg.Telemetry.Logging))
//	slog.SetDefault(logger)
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(ctx)
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	http.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
//
// Every component accepts a disabled configuration and then does no work,
// so callers never need to branch on whether telemetry is on.
package telemetry
