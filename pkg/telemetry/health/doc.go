// Package health serves the relay's liveness, readiness and version probes.
//
// Liveness only reports that the process answers. Readiness runs every
// registered component check concurrently, each under its own timeout, and
// answers 503 when any of them fails:
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("conversation_store", store.Ping)
//	checker.RegisterCheck("providers", func(ctx context.Context) error { ... })
//	mux.Handle("GET /healthz", checker.LivenessHandler())
//	mux.Handle("GET /readyz", checker.ReadinessHandler())
package health
