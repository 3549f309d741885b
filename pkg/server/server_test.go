package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/relay/internal/testutil"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/conversation/storage"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/limits/ratelimit"
	"mercator-hq/relay/pkg/processing/costs"
	"mercator-hq/relay/pkg/processing/tokens"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/telemetry/metrics"
)

type testEnv struct {
	srv      *Server
	store    *conversation.Store
	registry *routing.Registry
	mocks    map[string]*testutil.MockProvider
}

type envOptions struct {
	limit      int
	maxBody    int64
	dispatcher dispatch.MessageProcessor
	metrics    *metrics.Collector
	tls        config.TLSConfig
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()

	env := &testEnv{mocks: map[string]*testutil.MockProvider{}}
	var regs []routing.Registration
	for i, name := range []string{"a", "b"} {
		m := testutil.NewMockProvider(name)
		env.mocks[name] = m
		regs = append(regs, routing.Registration{Provider: m, Priority: i})
	}
	reg, err := routing.NewRegistry(routing.Config{}, regs)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	env.registry = reg

	env.store = conversation.NewStore(storage.NewMemory(), conversation.Config{})
	t.Cleanup(func() { env.store.Close() })

	d := opts.dispatcher
	if d == nil {
		d, err = dispatch.New(dispatch.Config{
			Registry:   reg,
			Limiter:    ratelimit.NewFixedWindow(ratelimit.Config{Limit: opts.limit, Window: time.Minute}),
			Store:      env.store,
			Estimator:  tokens.NewEstimator(nil),
			Calculator: costs.NewCalculator(nil),
		})
		if err != nil {
			t.Fatalf("dispatch.New: %v", err)
		}
	}

	deps := Dependencies{
		Dispatcher: d,
		Store:      env.store,
		Registry:   reg,
		Version:    "test",
	}
	if opts.metrics != nil {
		deps.Metrics = opts.metrics.Handler()
		deps.MetricsPath = "/metrics"
	}

	env.srv, err = New(config.ServerConfig{MaxBodyBytes: opts.maxBody, TLS: opts.tls}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) createSession(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/sessions", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("create session status = %d: %s", rec.Code, rec.Body)
	}
	var sess conversation.Session
	if err := json.NewDecoder(rec.Body).Decode(&sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return sess.ID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp.Error
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(config.ServerConfig{}, Dependencies{}); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodPost, "/v1/sessions", `{"owner_ref":"user-1","metadata":{"channel":"web"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var sess conversation.Session
	_ = json.NewDecoder(rec.Body).Decode(&sess)
	if sess.ID == "" || sess.OwnerRef != "user-1" || sess.Status != conversation.StatusActive {
		t.Fatalf("session = %+v", sess)
	}

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/messages", `{"text":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("message status = %d: %s", rec.Code, rec.Body)
	}
	var res dispatch.Result
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Provider != "a" || res.Message.Content != "reply from a" {
		t.Errorf("result = %+v", res)
	}
	if rec.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("missing X-RateLimit-Remaining on success")
	}

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+sess.ID+"/messages", "")
	var hist HistoryResponse
	_ = json.NewDecoder(rec.Body).Decode(&hist)
	if rec.Code != http.StatusOK || len(hist.Messages) != 2 {
		t.Fatalf("history status = %d, messages = %d", rec.Code, len(hist.Messages))
	}
	if hist.Messages[0].Role != conversation.RoleUser || hist.Messages[1].Role != conversation.RoleAssistant {
		t.Errorf("history order = %+v", hist.Messages)
	}

	rec = env.do(t, http.MethodGet, "/v1/sessions/"+sess.ID+"/messages?limit=1", "")
	_ = json.NewDecoder(rec.Body).Decode(&hist)
	if len(hist.Messages) != 1 || hist.Messages[0].Role != conversation.RoleAssistant {
		t.Errorf("limited history = %+v", hist.Messages)
	}

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/end", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("end status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/messages", `{"text":"again"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("message to ended session status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/v1/sessions/"+sess.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/v1/sessions/"+sess.ID+"/messages", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("history after delete status = %d, want 404", rec.Code)
	}
}

func TestMessage_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.createSession(t)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		typ    string
		param  string
	}{
		{"unknown session", "/v1/sessions/missing/messages", `{"text":"hi"}`, http.StatusNotFound, ErrorTypeNotFound, ""},
		{"empty text", "/v1/sessions/" + id + "/messages", `{"text":"  "}`, http.StatusBadRequest, ErrorTypeInvalidRequest, "text"},
		{"bad temperature", "/v1/sessions/" + id + "/messages", `{"text":"hi","temperature":3}`, http.StatusBadRequest, ErrorTypeInvalidRequest, "temperature"},
		{"malformed json", "/v1/sessions/" + id + "/messages", `{"text":`, http.StatusBadRequest, ErrorTypeInvalidRequest, ""},
		{"unknown field", "/v1/sessions/" + id + "/messages", `{"txt":"hi"}`, http.StatusBadRequest, ErrorTypeInvalidRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.status, rec.Body)
			}
			detail := decodeError(t, rec)
			if detail.Type != tt.typ || detail.Param != tt.param {
				t.Errorf("detail = %+v", detail)
			}
		})
	}
}

func TestMessage_RateLimited(t *testing.T) {
	env := newTestEnv(t, envOptions{limit: 1})
	id := env.createSession(t)

	if rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", `{"text":"one"}`); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", `{"text":"two"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	h := rec.Header()
	if h.Get("X-RateLimit-Limit") != "1" || h.Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("quota headers = %v", h)
	}
	if h.Get("X-RateLimit-Reset") == "" || h.Get("Retry-After") == "" {
		t.Errorf("missing reset headers: %v", h)
	}
	if detail := decodeError(t, rec); detail.Type != ErrorTypeRateLimitExceeded || detail.Category != "caller" {
		t.Errorf("detail = %+v", detail)
	}
}

func TestMessage_Exhausted(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	for _, m := range env.mocks {
		m.Fail()
	}
	id := env.createSession(t)

	rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", `{"text":"hello"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Category != "exhaustion" {
		t.Errorf("detail = %+v", detail)
	}
}

type stubProcessor struct {
	err   error
	panic bool
}

func (s stubProcessor) ProcessMessage(ctx context.Context, sessionID, text string, opts dispatch.Options) (*dispatch.Result, error) {
	if s.panic {
		panic("boom")
	}
	return nil, s.err
}

func TestMessage_CanceledAndStorageErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"canceled", dispatch.ErrCanceled, StatusClientClosedRequest},
		{"storage", conversation.NewStorageError("sqlite", "append_message", errors.New("disk I/O error")), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{dispatcher: stubProcessor{err: tt.err}})
			rec := env.do(t, http.MethodPost, "/v1/sessions/x/messages", `{"text":"hi"}`)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if detail := decodeError(t, rec); strings.Contains(detail.Message, "disk") {
				t.Errorf("storage details leaked: %q", detail.Message)
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t, envOptions{dispatcher: stubProcessor{panic: true}})
	rec := env.do(t, http.MethodPost, "/v1/sessions/x/messages", `{"text":"hi"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Type != ErrorTypeServerError {
		t.Errorf("detail = %+v", detail)
	}
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, envOptions{maxBody: 16})
	id := env.createSession(t)

	rec := env.do(t, http.MethodPost, "/v1/sessions/"+id+"/messages", `{"text":"`+strings.Repeat("x", 64)+`"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestHistory_InvalidLimit(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	id := env.createSession(t)

	for _, q := range []string{"abc", "-1"} {
		rec := env.do(t, http.MethodGet, "/v1/sessions/"+id+"/messages?limit="+q, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d, want 400", q, rec.Code)
		}
	}
}

func TestProviders(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodGet, "/v1/providers", "")
	var resp ProvidersResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Ready || len(resp.Providers) != 2 || resp.Providers[0].Name != "a" {
		t.Errorf("providers = %+v", resp)
	}

	rec = env.do(t, http.MethodPut, "/v1/providers/a/maintenance", `{"down":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("maintenance status = %d", rec.Code)
	}
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if !resp.Providers[0].Maintenance {
		t.Error("provider a should be in maintenance")
	}

	entry, _ := env.registry.Get("b")
	for i := 0; i < routing.DefaultFailureThreshold; i++ {
		entry.Breaker.RecordFailure()
	}
	rec = env.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with no usable provider = %d, want 503", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/v1/providers/b/reset", "")
	if rec.Code != http.StatusOK || entry.Breaker.State() != routing.StateClosed {
		t.Errorf("reset status = %d, state = %s", rec.Code, entry.Breaker.State())
	}
	if rec := env.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz after reset = %d, want 200", rec.Code)
	}

	if rec := env.do(t, http.MethodPost, "/v1/providers/nope/reset", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown provider status = %d, want 404", rec.Code)
	}
}

func TestProviders_HealthReport(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodPut, "/v1/providers/b/health", `{"healthy":false,"reason":"monitor alert"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("health report status = %d: %s", rec.Code, rec.Body)
	}
	var resp ProvidersResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := resp.Providers[1]
	if b.Name != "b" || b.LastHealthOK || b.LastHealthCheckAt == nil {
		t.Errorf("provider b = %+v, want an unhealthy reading", b)
	}
	if env.mocks["b"].HealthCalls() != 0 {
		t.Error("reported reading should not trigger a probe")
	}

	if rec := env.do(t, http.MethodPut, "/v1/providers/b/health", `{"healthy":"no"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/v1/providers/nope/health", `{"healthy":true}`); rec.Code != http.StatusNotFound {
		t.Errorf("unknown provider status = %d, want 404", rec.Code)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true, Namespace: "relay"}, nil)
	env := newTestEnv(t, envOptions{metrics: collector})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing request ID header")
	}

	rec = env.do(t, http.MethodGet, "/version", "")
	if !strings.Contains(rec.Body.String(), `"version":"test"`) {
		t.Errorf("version body = %s", rec.Body)
	}

	collector.IncRateLimited()
	rec = env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "relay_limits_rate_limited_total 1") {
		t.Errorf("metrics = %d:\n%s", rec.Code, rec.Body)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if !env.srv.IsRunning() {
		t.Error("IsRunning() = false while serving")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	if env.srv.IsRunning() {
		t.Error("IsRunning() = true after shutdown")
	}
}
