// Package dispatch implements the fallback dispatcher behind ProcessMessage.
//
// One call runs these steps:
//
//  1. Validate the input and consult the per-session rate limiter. A rejected
//     call never reaches a provider.
//  2. Load (or, for an empty session ID, create) the session, read its recent
//     history and build the bounded context window.
//  3. Persist the USER message.
//  4. Walk the registry in priority order. Providers with an OPEN breaker or
//     an unhealthy reading are skipped. Each remaining provider gets one
//     attempt with a bounded timeout; a failure is recorded against its
//     breaker and health reading and the next provider is tried.
//  5. On success, estimate tokens and cost and persist the ASSISTANT message.
//     On exhaustion, persist a placeholder ASSISTANT message and return
//     ErrAllProvidersExhausted.
//
// A caller cancellation is never counted against a provider.
//
// Every call emits one audit record, Prometheus observations through the
// Metrics interface and an OpenTelemetry span with a child span per attempt.
package dispatch
