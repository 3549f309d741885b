// Package server is the relay's HTTP surface.
//
// It is a thin layer over the dispatcher and the conversation store: request
// bodies are decoded, handed to dispatch.MessageProcessor or the store, and
// errors are mapped to status codes through dispatch.Classify.
//
// # Routes
//
//   - POST   /v1/sessions                    create a session
//   - POST   /v1/sessions/{id}/messages      process a message
//   - GET    /v1/sessions/{id}/messages      read history (?limit=N)
//   - POST   /v1/sessions/{id}/end           end a session
//   - DELETE /v1/sessions/{id}               delete a session and its history
//   - GET    /v1/providers                   registry snapshot
//   - PUT    /v1/providers/{name}/maintenance hold a provider down or release it
//   - PUT    /v1/providers/{name}/health      report health from an external monitor
//   - POST   /v1/providers/{name}/reset      close a provider's breaker
//   - GET    /healthz, /readyz, /version     probes
//   - GET    /metrics                        Prometheus scrape (when enabled)
//
// # Status codes
//
// Rate limiting answers 429 with X-RateLimit-Limit, X-RateLimit-Remaining,
// X-RateLimit-Reset and Retry-After. Unknown sessions answer 404, invalid
// input and ended sessions 400, provider exhaustion 503, a caller that went
// away 499 and storage failures 500.
//
// # Middleware
//
// From the outside in: recovery, request ID, access log, tracing, body limit.
// Tracing sits directly above the mux so server spans are named after the
// matched route.
//
// # TLS
//
// With server.tls.enabled the listener is wrapped in TLS. The key pair is
// re-read when either file's modification time changes, checked every
// reload_interval. A renewed pair that fails to load or is already expired
// is logged and the previous one keeps serving.
package server
