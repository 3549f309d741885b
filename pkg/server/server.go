package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/telemetry/health"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// Dependencies are the components the server exposes. Dispatcher, Store and
// Registry are required.
type Dependencies struct {
	Dispatcher dispatch.MessageProcessor
	Store      *conversation.Store
	Registry   *routing.Registry

	// Health serves /readyz. When nil, a checker with store and provider
	// checks is built.
	Health *health.Checker

	// Metrics serves MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string

	// Tracer creates server spans. Defaults to the global tracer provider.
	Tracer trace.Tracer

	// Version, Commit and BuildTime are reported by /version.
	Version   string
	Commit    string
	BuildTime string
}

// Server serves the relay HTTP API.
type Server struct {
	cfg        config.ServerConfig
	dispatcher dispatch.MessageProcessor
	store      *conversation.Store
	registry   *routing.Registry
	health     *health.Checker
	handler    http.Handler
	logger     *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	running    bool
}

// New builds a server and its route table.
func New(cfg config.ServerConfig, deps Dependencies) (*Server, error) {
	switch {
	case deps.Dispatcher == nil:
		return nil, errors.New("server requires a dispatcher")
	case deps.Store == nil:
		return nil, errors.New("server requires a conversation store")
	case deps.Registry == nil:
		return nil, errors.New("server requires a provider registry")
	}

	s := &Server{
		cfg:        cfg,
		dispatcher: deps.Dispatcher,
		store:      deps.Store,
		registry:   deps.Registry,
		health:     deps.Health,
		logger:     slog.Default().With("component", "server"),
	}
	if s.health == nil {
		s.health = DefaultChecks(deps.Store, deps.Registry)
	}

	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracing.InstrumentationName)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", s.handleMessage)
	mux.HandleFunc("GET /v1/sessions/{id}/messages", s.handleHistory)
	mux.HandleFunc("POST /v1/sessions/{id}/end", s.handleEndSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /v1/providers", s.handleProviders)
	mux.HandleFunc("PUT /v1/providers/{name}/maintenance", s.handleMaintenance)
	mux.HandleFunc("PUT /v1/providers/{name}/health", s.handleHealthReport)
	mux.HandleFunc("POST /v1/providers/{name}/reset", s.handleResetBreaker)
	mux.Handle("GET /healthz", s.health.LivenessHandler())
	mux.Handle("GET /readyz", s.health.ReadinessHandler())
	mux.Handle("GET /version", health.VersionHandler(deps.Version, deps.Commit, deps.BuildTime))

	quiet := []string{"/healthz", "/readyz"}
	if deps.Metrics != nil {
		path := deps.MetricsPath
		if path == "" {
			path = config.DefaultPrometheusPath
		}
		mux.Handle("GET "+path, deps.Metrics)
		quiet = append(quiet, path)
	}

	s.handler = chain(mux,
		Recovery,
		RequestID,
		AccessLog(quiet...),
		tracing.HTTPMiddleware(tracer),
		BodyLimit(cfg.MaxBodyBytes),
	)
	return s, nil
}

// DefaultChecks returns a checker that requires a reachable conversation
// store and at least one provider with a closed breaker that is not known
// to be unhealthy.
func DefaultChecks(store *conversation.Store, reg *routing.Registry) *health.Checker {
	checker := health.New(0)
	checker.RegisterCheck("conversation_store", store.Ping)
	checker.RegisterCheck("providers", func(context.Context) error {
		if !reg.Ready() {
			return errors.New("no provider is available")
		}
		return nil
	})
	return checker
}

// Handler returns the fully wrapped route table.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server is already running")
	}
	s.httpServer = &http.Server{
		Handler:        s.handler,
		ReadTimeout:    s.cfg.ReadTimeout,
		WriteTimeout:   s.cfg.WriteTimeout,
		IdleTimeout:    s.cfg.IdleTimeout,
		MaxHeaderBytes: s.cfg.MaxHeaderBytes,
	}
	if s.cfg.TLS.Enabled {
		reloader, err := newCertReloader(s.cfg.TLS, s.logger)
		if err != nil {
			s.httpServer = nil
			s.mu.Unlock()
			ln.Close()
			return fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		go reloader.run(ctx)
		ln = tls.NewListener(ln, tlsConfig(s.cfg.TLS, reloader))
	}
	s.running = true
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "address", ln.Addr().String(), "tls", s.cfg.TLS.Enabled)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.WithoutCancel(ctx))
	case err, ok := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if ok {
			return err
		}
		return nil
	}
}

// Shutdown stops accepting connections and waits for in-flight requests
// for up to the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	running := s.running
	s.running = false
	s.mu.Unlock()
	if !running || srv == nil {
		return nil
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	s.logger.Info("initiating graceful shutdown", "timeout", timeout.String())

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
