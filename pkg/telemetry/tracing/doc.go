// Package tracing configures OpenTelemetry tracing for relay.
//
// # Overview
//
// New installs a global TracerProvider that exports spans over OTLP gRPC and
// a W3C Trace Context + Baggage propagator. When tracing is disabled the
// global provider is left untouched and spans are no-ops.
//
// The dispatcher creates one span per ProcessMessage call with one child
// span per provider attempt. HTTPMiddleware adds a server span per request
// and continues a trace from an incoming traceparent header.
//
// # Attributes
//
// Custom attributes use the "relay.*" namespace:
//   - relay.session_id: conversation session
//   - relay.provider, relay.provider.kind: provider attempted or used
//   - relay.outcome: attempt or dispatch outcome
//   - relay.tokens_used, relay.cost_usd: usage of a successful exchange
//   - relay.error.category: error category of a failed call
//
// # Sampling
//
// Root spans are sampled with TraceIDRatioBased(sample_ratio); child spans
// follow their parent's decision.
package tracing
