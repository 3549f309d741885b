package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"mercator-hq/relay/pkg/audit"
	"mercator-hq/relay/pkg/cli"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/conversation/storage"
	"mercator-hq/relay/pkg/dispatch"
	"mercator-hq/relay/pkg/limits/ratelimit"
	"mercator-hq/relay/pkg/processing/costs"
	"mercator-hq/relay/pkg/processing/tokens"
	"mercator-hq/relay/pkg/providerfactory"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/secrets"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/metrics"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// loadConfig reads cfgFile with environment overrides and resolves secret
// references.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	if err := resolveSecrets(context.Background(), cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveSecrets replaces ${secret:name} references in cfg.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	r, err := secrets.FromConfig(cfg.Secrets)
	if err != nil {
		return cli.NewConfigError("secrets.dir", err.Error())
	}
	if err := r.ResolveConfig(ctx, cfg); err != nil {
		return cli.NewConfigError("secrets", err.Error())
	}
	return nil
}

// setupLogging installs the configured logger as the slog default. --verbose
// forces debug level.
func setupLogging(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	lc := logging.FromConfig(&cfg.Telemetry.Logging)
	lc.Writer = w
	if verbose {
		lc.Level = "debug"
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)
	return logger, nil
}

// app holds every component built from one configuration.
type app struct {
	cfg        *config.Config
	tracer     *tracing.Tracer
	metrics    *metrics.Collector
	registry   *routing.Registry
	limiter    *ratelimit.FixedWindow
	store      *conversation.Store
	estimator  *tokens.Estimator
	calculator *costs.Calculator
	audit      audit.Storage
	recorder   *audit.Recorder
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// newApp wires the full dispatch pipeline. On error everything built so far
// is closed.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{
		cfg:        cfg,
		estimator:  tokens.NewEstimator(&cfg.Tokens),
		calculator: costs.NewCalculator(&cfg.Costs),
		limiter:    newLimiter(cfg.RateLimit),
		logger:     slog.Default().With("component", "relay"),
	}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.tracer, err = tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	a.registry, err = openRegistry(cfg, a.metrics.BreakerStateChanged)
	if err != nil {
		return nil, err
	}

	a.store, err = openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var sink dispatch.AuditSink
	if cfg.Audit.Enabled {
		a.audit, err = openAudit(cfg)
		if err != nil {
			return nil, err
		}
		a.recorder = audit.NewRecorder(a.audit, audit.RecorderConfig{
			BufferSize:   cfg.Audit.Recorder.BufferSize,
			WriteTimeout: cfg.Audit.Recorder.WriteTimeout,
			OnDrop:       a.metrics.IncAuditDropped,
		})
		sink = a.recorder
	}

	a.dispatcher, err = dispatch.New(dispatch.Config{
		Registry:   a.registry,
		Limiter:    a.limiter,
		Store:      a.store,
		Estimator:  a.estimator,
		Calculator: a.calculator,
		Audit:      sink,
		Metrics:    a.metrics,
		Tracer:     a.tracer.Tracer(),
		Settings:   cfg.Dispatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	if a.metrics.Enabled() {
		err = errors.Join(
			a.metrics.WatchRegistry(a.registry),
			a.metrics.WatchLimiter(a.limiter),
			a.metrics.WatchConversation(a.store),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return a, nil
}

// apply hot-swaps the settings that can change without a restart.
func (a *app) apply(next *config.Config) {
	a.calculator.UpdatePricing(&next.Costs)
	a.estimator.Update(&next.Tokens)
	a.limiter.Update(ratelimit.Config{Limit: next.RateLimit.Limit, Window: next.RateLimit.Window})
	a.dispatcher.UpdateSettings(next.Dispatch)

	if !slices.Equal(a.cfg.Providers, next.Providers) ||
		a.cfg.Breaker != next.Breaker ||
		a.cfg.Conversation != next.Conversation ||
		a.cfg.Server != next.Server {
		a.logger.Warn("provider, breaker, storage or server changes require a restart")
	}
	a.logger.Info("configuration applied",
		"rate_limit", next.RateLimit.Limit,
		"rate_window", next.RateLimit.Window,
		"priced_providers", len(next.Costs.Pricing),
	)
}

// Close flushes pending records and releases every component.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
	}
	if a.audit != nil {
		errs = append(errs, a.audit.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.registry != nil {
		errs = append(errs, a.registry.Close())
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func newLimiter(cfg config.RateLimitConfig) *ratelimit.FixedWindow {
	return ratelimit.NewFixedWindow(ratelimit.Config{Limit: cfg.Limit, Window: cfg.Window})
}

// providerConfig converts one file entry into adapter configuration.
func providerConfig(pc config.ProviderConfig) (providers.ProviderConfig, error) {
	kind, err := providers.ParseKind(pc.Kind)
	if err != nil {
		return providers.ProviderConfig{}, err
	}
	return providers.ProviderConfig{
		Name:       pc.Name,
		Kind:       kind,
		BaseURL:    pc.BaseURL,
		APIKey:     pc.APIKey,
		Model:      pc.Model,
		MaxTokens:  pc.MaxTokens,
		Timeout:    pc.Timeout,
		MaxRetries: pc.MaxRetries,
	}, nil
}

// openRegistry builds the enabled providers and their breakers.
func openRegistry(cfg *config.Config, onChange routing.StateChangeFunc) (*routing.Registry, error) {
	enabled := cfg.EnabledProviders()
	configs := make([]providers.ProviderConfig, 0, len(enabled))
	for _, pc := range enabled {
		c, err := providerConfig(pc)
		if err != nil {
			return nil, cli.NewConfigError("providers."+pc.Name+".kind", err.Error())
		}
		configs = append(configs, c)
	}

	ps, err := providerfactory.NewProviders(configs)
	if err != nil {
		return nil, fmt.Errorf("failed to create providers: %w", err)
	}

	regs := make([]routing.Registration, len(ps))
	for i, p := range ps {
		regs[i] = routing.Registration{Provider: p, Priority: enabled[i].Priority}
	}

	reg, err := routing.NewRegistry(routing.Config{
		Breaker: routing.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			FailureWindow:    cfg.Breaker.FailureWindow,
			Cooldown:         cfg.Breaker.Cooldown,
			HalfOpen:         cfg.Breaker.HalfOpen,
		},
		Health: routing.HealthConfig{
			TTL:          cfg.Health.TTL,
			ProbeTimeout: cfg.Health.ProbeTimeout,
		},
		OnStateChange: onChange,
	}, regs)
	if err != nil {
		providerfactory.CloseAll(ps)
		return nil, fmt.Errorf("failed to create provider registry: %w", err)
	}
	return reg, nil
}

// openStore opens the configured conversation backend behind the cache.
func openStore(ctx context.Context, cfg *config.Config) (*conversation.Store, error) {
	cc := cfg.Conversation

	var backend conversation.Backend
	switch cc.Backend {
	case "memory":
		backend = storage.NewMemory()
	case "sqlite":
		sqlite, err := storage.NewSQLite(storage.SQLiteConfig{
			Path:        cc.SQLite.Path,
			Driver:      cc.SQLite.Driver,
			BusyTimeout: cc.SQLite.BusyTimeout,
			WALMode:     cc.SQLite.WALMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open conversation store: %w", err)
		}
		backend = sqlite
	case "postgres":
		pg, err := storage.NewPostgres(ctx, cc.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open conversation store: %w", err)
		}
		backend = pg
	default:
		return nil, cli.NewConfigError("conversation.backend", fmt.Sprintf("unsupported backend %q", cc.Backend))
	}

	return conversation.NewStore(backend, conversation.Config{
		CacheTTL:        cc.CacheTTL,
		CacheMaxEntries: cc.CacheMaxEntries,
	}), nil
}

// openAudit opens dispatch record storage.
func openAudit(cfg *config.Config) (audit.Storage, error) {
	ac := cfg.Audit
	switch ac.Backend {
	case "memory":
		return audit.NewMemoryStorage(), nil
	case "sqlite":
		s, err := audit.NewSQLiteStorage(audit.SQLiteConfig{
			Path:        ac.SQLite.Path,
			Driver:      ac.SQLite.Driver,
			BusyTimeout: ac.SQLite.BusyTimeout,
			WALMode:     ac.SQLite.WALMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit storage: %w", err)
		}
		return s, nil
	default:
		return nil, cli.NewConfigError("audit.backend", fmt.Sprintf("unsupported backend %q", ac.Backend))
	}
}

// stderrLogging sets up logging for one-shot commands so that stdout only
// carries command output.
func stderrLogging(cfg *config.Config) error {
	_, err := setupLogging(cfg, os.Stderr)
	return err
}
