package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	relaytestutil "mercator-hq/relay/internal/testutil"
	"mercator-hq/relay/pkg/audit"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/conversation/storage"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/limits/ratelimit"
	"mercator-hq/relay/pkg/routing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "relay"}, prometheus.NewRegistry())
}

func TestCollector_ObserveDispatch(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveDispatch(audit.OutcomeSuccess, 120*time.Millisecond)
	c.ObserveDispatch(audit.OutcomeSuccess, 80*time.Millisecond)
	c.ObserveDispatch(audit.OutcomeExhausted, time.Second)

	if got := testutil.ToFloat64(c.dispatch.total.WithLabelValues("success")); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.dispatch.total.WithLabelValues("exhausted")); got != 1 {
		t.Errorf("exhausted count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(c.dispatch.duration); n != 2 {
		t.Errorf("duration series = %d, want 2", n)
	}
}

func TestCollector_ObserveAttempt(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveAttempt("a", dispatch.AttemptFailed, 50*time.Millisecond)
	c.ObserveAttempt("a", dispatch.AttemptSkippedOpen, 0)
	c.ObserveAttempt("b", dispatch.AttemptSuccess, 200*time.Millisecond)

	if got := testutil.ToFloat64(c.provider.attempts.WithLabelValues("a", "skipped_open")); got != 1 {
		t.Errorf("skipped_open = %v, want 1", got)
	}
	// Skips are counted but never timed.
	if n := testutil.CollectAndCount(c.provider.latency); n != 2 {
		t.Errorf("latency series = %d, want 2", n)
	}
}

func TestCollector_ObserveUsage(t *testing.T) {
	c := newTestCollector(t)

	c.ObserveUsage("a", 100, 0.002)
	c.ObserveUsage("a", 50, 0)
	c.ObserveUsage("b", 0, 0)

	if got := testutil.ToFloat64(c.provider.tokens.WithLabelValues("a")); got != 150 {
		t.Errorf("tokens = %v, want 150", got)
	}
	if got := testutil.ToFloat64(c.provider.cost.WithLabelValues("a")); got != 0.002 {
		t.Errorf("cost = %v, want 0.002", got)
	}
	if n := testutil.CollectAndCount(c.provider.tokens); n != 1 {
		t.Errorf("token series = %d, want 1", n)
	}
}

func TestCollector_Counters(t *testing.T) {
	c := newTestCollector(t)

	c.IncRateLimited()
	c.IncRateLimited()
	c.IncAuditDropped()
	c.BreakerStateChanged("a", routing.StateClosed, routing.StateOpen)

	if got := testutil.ToFloat64(c.limits.rejected); got != 2 {
		t.Errorf("rate limited = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.audit.dropped); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.routing.transitions.WithLabelValues("a", "CLOSED", "OPEN")); got != 1 {
		t.Errorf("transitions = %v, want 1", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(&config.MetricsConfig{Enabled: false}, reg)

	c.ObserveDispatch(audit.OutcomeSuccess, time.Second)
	c.ObserveAttempt("a", dispatch.AttemptSuccess, time.Second)
	c.ObserveUsage("a", 10, 1)
	c.IncRateLimited()
	c.IncAuditDropped()
	c.BreakerStateChanged("a", routing.StateClosed, routing.StateOpen)
	if err := c.WatchLimiter(ratelimit.NewFixedWindow(ratelimit.Config{})); err != nil {
		t.Fatalf("WatchLimiter: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 0 {
		t.Errorf("disabled collector registered %d families", len(families))
	}
}

func TestCollector_WatchRegistry(t *testing.T) {
	c := newTestCollector(t)

	reg, err := routing.NewRegistry(routing.Config{
		Breaker: routing.BreakerConfig{FailureThreshold: 1},
	}, []routing.Registration{
		{Provider: relaytestutil.NewMockProvider("a"), Priority: 1},
		{Provider: relaytestutil.NewMockProvider("b"), Priority: 2},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := c.WatchRegistry(reg); err != nil {
		t.Fatalf("WatchRegistry: %v", err)
	}

	entry, _ := reg.Get("a")
	entry.Breaker.RecordFailure()
	reg.Health().Set("b", true, "")

	expected := `
# HELP relay_routing_circuit_state Circuit breaker state (0 closed, 1 open, 2 half-open)
# TYPE relay_routing_circuit_state gauge
relay_routing_circuit_state{provider="a"} 1
relay_routing_circuit_state{provider="b"} 0
# HELP relay_routing_provider_healthy Last cached health reading (1 healthy, 0 unhealthy or in maintenance)
# TYPE relay_routing_provider_healthy gauge
relay_routing_provider_healthy{provider="b"} 1
`
	err = testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"relay_routing_circuit_state", "relay_routing_provider_healthy")
	if err != nil {
		t.Error(err)
	}

	if err := c.WatchRegistry(reg); err == nil {
		t.Error("expected error registering the registry collector twice")
	}
}

func TestCollector_WatchConversationAndLimiter(t *testing.T) {
	c := newTestCollector(t)
	ctx := context.Background()

	store := conversation.NewStore(storage.NewMemory(), conversation.Config{})
	defer store.Close()
	if err := c.WatchConversation(store); err != nil {
		t.Fatalf("WatchConversation: %v", err)
	}

	sess, err := store.CreateSession(ctx, conversation.SessionOptions{})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := store.GetSession(ctx, sess.ID); err != nil {
		t.Fatalf("GetSession: %v", err)
	}

	limiter := ratelimit.NewFixedWindow(ratelimit.Config{})
	limiter.Allow(ratelimit.SessionKey("s1"))
	limiter.Allow(ratelimit.SessionKey("s2"))
	if err := c.WatchLimiter(limiter); err != nil {
		t.Fatalf("WatchLimiter: %v", err)
	}

	expected := `
# HELP relay_limits_active_windows Rate limit windows currently tracked
# TYPE relay_limits_active_windows gauge
relay_limits_active_windows 2
`
	if err := testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "relay_limits_active_windows"); err != nil {
		t.Error(err)
	}

	// Two caches, four series each.
	n, err := testutil.GatherAndCount(c.Registry(),
		"relay_conversation_cache_entries",
		"relay_conversation_cache_hits_total",
		"relay_conversation_cache_misses_total",
		"relay_conversation_cache_evictions_total",
	)
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 8 {
		t.Errorf("cache series = %d, want 8", n)
	}
}

func TestCollector_Handler(t *testing.T) {
	c := newTestCollector(t)
	c.ObserveDispatch(audit.OutcomeRateLimited, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), `relay_dispatch_requests_total{outcome="rate_limited"} 1`) {
		t.Errorf("missing dispatch counter in scrape:\n%s", body)
	}
}

func TestNewCollector_DefaultRegistry(t *testing.T) {
	c := NewCollector(nil, nil)
	if !c.Enabled() {
		t.Fatal("nil config should enable the collector")
	}
	n, err := testutil.GatherAndCount(c.Registry(), "go_goroutines")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Errorf("go_goroutines series = %d, want 1", n)
	}
}
