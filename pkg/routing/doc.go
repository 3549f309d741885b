// Package routing owns the process-wide provider table consulted by the
// dispatcher: the priority-ordered [Registry], one [CircuitBreaker] per
// provider, the shared [HealthCache], and per-provider counters.
//
// Provider order is fixed configuration. The registry never reorders
// providers by latency or load; the dispatcher walks [Registry.Entries] in
// order and skips entries whose breaker refuses the call or whose cached
// health is bad.
//
// All mutable state is guarded per provider: each breaker has its own mutex,
// the health cache de-duplicates concurrent probes for one provider, and
// counters are atomic.
package routing
