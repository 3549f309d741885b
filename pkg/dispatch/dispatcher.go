package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/relay/pkg/audit"
	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/limits/ratelimit"
	convwindow "mercator-hq/relay/pkg/processing/conversation"
	"mercator-hq/relay/pkg/processing/costs"
	"mercator-hq/relay/pkg/processing/tokens"
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/routing"
	"mercator-hq/relay/pkg/telemetry/logging"
	"mercator-hq/relay/pkg/telemetry/tracing"
)

// TracerName is the instrumentation scope of dispatch spans.
const TracerName = "mercator-hq/relay/dispatch"

// Config wires a Dispatcher. Registry, Limiter, Store, Estimator and
// Calculator are required.
type Config struct {
	Registry   *routing.Registry
	Limiter    *ratelimit.FixedWindow
	Store      *conversation.Store
	Estimator  *tokens.Estimator
	Calculator *costs.Calculator

	// Audit receives one record per call. Optional.
	Audit AuditSink

	// Metrics receives observations. Optional.
	Metrics Metrics

	// Tracer creates spans. Defaults to the global tracer provider.
	Tracer trace.Tracer

	// Settings holds the tunables that can change at runtime.
	Settings config.DispatchConfig
}

// Dispatcher routes messages to providers in priority order.
type Dispatcher struct {
	registry   *routing.Registry
	limiter    *ratelimit.FixedWindow
	store      *conversation.Store
	estimator  *tokens.Estimator
	calculator *costs.Calculator
	audit      AuditSink
	metrics    Metrics
	tracer     trace.Tracer
	logger     *slog.Logger

	mu       sync.RWMutex
	settings config.DispatchConfig
}

var _ MessageProcessor = (*Dispatcher)(nil)

// New creates a Dispatcher.
func New(cfg Config) (*Dispatcher, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("dispatcher requires a provider registry")
	case cfg.Limiter == nil:
		return nil, errors.New("dispatcher requires a rate limiter")
	case cfg.Store == nil:
		return nil, errors.New("dispatcher requires a conversation store")
	case cfg.Estimator == nil:
		return nil, errors.New("dispatcher requires a token estimator")
	case cfg.Calculator == nil:
		return nil, errors.New("dispatcher requires a cost calculator")
	}

	d := &Dispatcher{
		registry:   cfg.Registry,
		limiter:    cfg.Limiter,
		store:      cfg.Store,
		estimator:  cfg.Estimator,
		calculator: cfg.Calculator,
		audit:      cfg.Audit,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		logger:     slog.Default().With("component", "dispatch"),
	}
	if d.audit == nil {
		d.audit = nopSink{}
	}
	if d.metrics == nil {
		d.metrics = nopMetrics{}
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(TracerName)
	}
	d.UpdateSettings(cfg.Settings)
	return d, nil
}

// UpdateSettings replaces the runtime tunables. Zero fields take defaults.
func (d *Dispatcher) UpdateSettings(s config.DispatchConfig) {
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = config.DefaultProviderAttempt
	}
	if s.MaxInputChars <= 0 {
		s.MaxInputChars = config.DefaultMaxInputChars
	}
	if s.HistoryMessages <= 0 {
		s.HistoryMessages = config.DefaultHistoryMessages
	}
	if s.ExhaustedMessage == "" {
		s.ExhaustedMessage = config.DefaultExhaustedMessage
	}

	d.mu.Lock()
	d.settings = s
	d.mu.Unlock()
}

// Settings returns the tunables in force.
func (d *Dispatcher) Settings() config.DispatchConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.settings
}

// call carries the bookkeeping of one ProcessMessage invocation.
type call struct {
	sessionID string
	settings  config.DispatchConfig
	record    *audit.Record
	attempts  []Attempt
	span      trace.Span
}

// ProcessMessage dispatches text for the session and returns the persisted
// reply. An empty sessionID creates a new session.
//
// Errors match ErrRateLimited (*RateLimitError), ErrInvalidInput,
// conversation.ErrSessionNotFound, conversation.ErrSessionEnded,
// ErrAllProvidersExhausted (*ExhaustedError), ErrCanceled or
// conversation.ErrStorage. Classify maps them to a Category.
func (d *Dispatcher) ProcessMessage(ctx context.Context, sessionID, text string, opts Options) (*Result, error) {
	start := time.Now()

	ctx, span := d.tracer.Start(ctx, "dispatch.ProcessMessage", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	c := &call{
		sessionID: sessionID,
		settings:  d.Settings(),
		record:    &audit.Record{ID: uuid.NewString(), Timestamp: start},
		span:      span,
	}

	res, err := d.process(ctx, c, text, opts)

	elapsed := time.Since(start)
	c.finish(res, err, elapsed)
	d.metrics.ObserveDispatch(c.record.Outcome, elapsed)
	if recErr := d.audit.Record(c.record); recErr != nil {
		d.logger.Debug("audit record not queued", "record_id", c.record.ID, "error", recErr)
	}

	logCtx := logging.WithSessionID(ctx, c.sessionID)
	if err != nil {
		level := slog.LevelWarn
		if cat := Classify(err); cat == CategoryCaller || cat == CategoryCanceled {
			level = slog.LevelInfo
		} else if cat == CategoryPersistence || cat == CategoryInternal {
			level = slog.LevelError
		}
		d.logger.Log(logCtx, level, "dispatch failed",
			"outcome", c.record.Outcome,
			"category", Classify(err),
			"providers_tried", c.record.ProvidersTried,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	d.logger.InfoContext(logCtx, "dispatch completed",
		"provider", res.Provider,
		"providers_tried", c.record.ProvidersTried,
		"latency_ms", res.LatencyMs,
		"tokens_used", res.Message.TokensUsed,
		"cost", res.Message.CostEstimate,
		"input_chars", utf8.RuneCountInString(text),
		"output_chars", utf8.RuneCountInString(res.Message.Content),
		"remaining", res.RateLimit.Remaining,
	)
	return res, nil
}

func (d *Dispatcher) process(ctx context.Context, c *call, text string, opts Options) (*Result, error) {
	if ctx.Err() != nil {
		return nil, canceled(ctx)
	}
	if err := validateInput(text, opts, c.settings.MaxInputChars); err != nil {
		return nil, err
	}

	created := false
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
		created = true
	}
	c.record.SessionID = c.sessionID
	c.span.SetAttributes(tracing.AttrSessionID.String(c.sessionID))
	ctx = logging.WithSessionID(ctx, c.sessionID)

	quota := d.limiter.Allow(ratelimit.SessionKey(c.sessionID))
	info := RateLimitInfo{Limit: quota.Limit, Remaining: quota.Remaining, ResetAt: quota.ResetAt}
	c.span.SetAttributes(tracing.AttrRateLimitRemaining.Int(quota.Remaining))
	if !quota.Allowed {
		d.metrics.IncRateLimited()
		return nil, &RateLimitError{
			SessionID:  c.sessionID,
			Limit:      quota.Limit,
			Remaining:  quota.Remaining,
			ResetAt:    quota.ResetAt,
			RetryAfter: quota.RetryAfter(time.Now()),
		}
	}

	if created {
		if _, err := d.store.CreateSession(ctx, conversation.SessionOptions{
			ID:       c.sessionID,
			OwnerRef: opts.OwnerRef,
			Metadata: opts.Metadata,
		}); err != nil {
			return nil, d.storeErr(ctx, "failed to create session", err)
		}
	} else {
		sess, err := d.store.GetSession(ctx, c.sessionID)
		if err != nil {
			return nil, d.storeErr(ctx, "failed to load session", err)
		}
		if !sess.Active() {
			return nil, fmt.Errorf("session %q: %w", c.sessionID, conversation.ErrSessionEnded)
		}
	}

	history, err := d.store.GetRecentMessages(ctx, c.sessionID, c.settings.HistoryMessages)
	if err != nil {
		return nil, d.storeErr(ctx, "failed to load history", err)
	}
	window := convwindow.BuildWindow(history, c.settings.HistoryMessages, c.settings.HistoryTokens, d.estimator)

	userMsg := &conversation.Message{
		SessionID:  c.sessionID,
		Role:       conversation.RoleUser,
		Content:    text,
		TokensUsed: d.estimator.EstimateText(text),
	}
	if err := d.store.AppendMessage(ctx, userMsg); err != nil {
		return nil, d.storeErr(ctx, "failed to persist user message", err)
	}

	req := &providers.GenerateRequest{
		SystemPrompt: c.settings.SystemPrompt,
		History:      window,
		UserText:     text,
		Model:        opts.Model,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
	}

	entry, resp, latency, err := d.fallback(ctx, c, req)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			return nil, err
		}
		return nil, d.persistPlaceholder(ctx, c, err)
	}

	usage := d.estimator.Usage(req, resp)
	var cost costs.CostEstimate
	if resp.Usage.PromptTokens+resp.Usage.CompletionTokens > 0 {
		cost = d.calculator.CalculateUsage(entry.Name(), usage)
	} else {
		cost = d.calculator.Estimate(entry.Name(), usage.TotalTokens)
	}
	d.metrics.ObserveUsage(entry.Name(), usage.TotalTokens, cost.TotalCost)

	reply := &conversation.Message{
		SessionID:      c.sessionID,
		Role:           conversation.RoleAssistant,
		Content:        resp.Text,
		Provider:       entry.Name(),
		TokensUsed:     usage.TotalTokens,
		CostEstimate:   cost.TotalCost,
		ResponseTimeMs: latency.Milliseconds(),
	}
	// The reply was paid for; store it even if the caller has gone away.
	if err := d.store.AppendMessage(context.WithoutCancel(ctx), reply); err != nil {
		return nil, d.storeErr(ctx, "failed to persist assistant message", err)
	}

	return &Result{
		SessionID: c.sessionID,
		Message:   *reply,
		Provider:  entry.Name(),
		LatencyMs: latency.Milliseconds(),
		RateLimit: info,
		Attempts:  c.attempts,
	}, nil
}

// fallback tries providers in priority order until one answers.
func (d *Dispatcher) fallback(ctx context.Context, c *call, req *providers.GenerateRequest) (*routing.Entry, *providers.GenerateResponse, time.Duration, error) {
	for i, entry := range d.registry.Entries() {
		if ctx.Err() != nil {
			return nil, nil, 0, canceled(ctx)
		}
		name := entry.Name()

		if !entry.Breaker.Allow() {
			entry.Stats.RecordSkippedOpen()
			d.skip(c, name, AttemptSkippedOpen)
			continue
		}
		if !d.registry.Health().Healthy(ctx, entry.Provider) {
			entry.Breaker.RecordCanceled()
			if ctx.Err() != nil {
				return nil, nil, 0, canceled(ctx)
			}
			entry.Stats.RecordSkippedUnhealthy()
			d.skip(c, name, AttemptSkippedUnhealthy)
			continue
		}

		resp, latency, err := d.attempt(ctx, c, i, entry, req)
		if err == nil {
			return entry, resp, latency, nil
		}
		if errors.Is(err, ErrCanceled) {
			return nil, nil, 0, err
		}
	}
	return nil, nil, 0, &ExhaustedError{SessionID: c.sessionID, Attempts: c.attempts}
}

// attempt makes one bounded provider call and records its outcome.
func (d *Dispatcher) attempt(ctx context.Context, c *call, index int, entry *routing.Entry, req *providers.GenerateRequest) (*providers.GenerateResponse, time.Duration, error) {
	name := entry.Name()
	ctx, span := d.tracer.Start(ctx, "dispatch.attempt", trace.WithAttributes(
		tracing.AttrProvider.String(name),
		tracing.AttrProviderKind.String(string(entry.Provider.GetKind())),
		tracing.AttrAttemptIndex.Int(index),
	))
	defer span.End()

	attemptCtx, cancel := context.WithTimeout(ctx, c.settings.ProviderTimeout)
	defer cancel()

	entry.Stats.RecordAttempt()
	c.record.ProvidersTried = append(c.record.ProvidersTried, name)

	start := time.Now()
	resp, err := entry.Provider.Generate(attemptCtx, req)
	latency := time.Since(start)

	switch {
	case err == nil:
		entry.Breaker.RecordSuccess()
		d.registry.Health().RecordCall(name, nil)
		entry.Stats.RecordSuccess(latency.Milliseconds())
		c.attempts = append(c.attempts, Attempt{Provider: name, Outcome: AttemptSuccess, LatencyMs: latency.Milliseconds()})
		d.metrics.ObserveAttempt(name, AttemptSuccess, latency)
		span.SetAttributes(tracing.AttrOutcome.String(string(AttemptSuccess)), tracing.AttrLatencyMs.Int64(latency.Milliseconds()))
		span.SetStatus(codes.Ok, "")
		return resp, latency, nil

	case ctx.Err() != nil:
		// The caller went away; the provider is not at fault.
		entry.Breaker.RecordCanceled()
		c.attempts = append(c.attempts, Attempt{Provider: name, Outcome: AttemptCanceled, LatencyMs: latency.Milliseconds()})
		d.metrics.ObserveAttempt(name, AttemptCanceled, latency)
		span.SetAttributes(tracing.AttrOutcome.String(string(AttemptCanceled)))
		span.SetStatus(codes.Error, "canceled")
		return nil, latency, canceled(ctx)

	default:
		entry.Breaker.RecordFailure()
		d.registry.Health().RecordCall(name, err)
		entry.Stats.RecordFailure()
		c.attempts = append(c.attempts, Attempt{Provider: name, Outcome: AttemptFailed, LatencyMs: latency.Milliseconds(), Error: err.Error()})
		d.metrics.ObserveAttempt(name, AttemptFailed, latency)
		tracing.SetError(span, err, string(CategoryProviderTransient))
		span.SetAttributes(tracing.AttrOutcome.String(string(AttemptFailed)))
		d.logger.WarnContext(logging.WithProvider(ctx, name), "provider attempt failed",
			"attempt", index,
			"duration_ms", latency.Milliseconds(),
			"error", err,
		)
		return nil, latency, err
	}
}

// persistPlaceholder stores the exhaustion reply and returns cause, or a
// persistence error that still matches cause.
func (d *Dispatcher) persistPlaceholder(ctx context.Context, c *call, cause error) error {
	placeholder := &conversation.Message{
		SessionID: c.sessionID,
		Role:      conversation.RoleAssistant,
		Content:   c.settings.ExhaustedMessage,
	}
	if err := d.store.AppendMessage(context.WithoutCancel(ctx), placeholder); err != nil {
		d.logger.ErrorContext(ctx, "failed to persist exhaustion placeholder", "error", err)
		return fmt.Errorf("%w: failed to persist placeholder: %w", cause, err)
	}
	return cause
}

// storeErr reports a store failure, turning a caller cancellation into ErrCanceled.
func (d *Dispatcher) storeErr(ctx context.Context, msg string, err error) error {
	if ctx.Err() != nil {
		return canceled(ctx)
	}
	if errors.Is(err, conversation.ErrStorage) {
		d.logger.ErrorContext(ctx, msg, "error", err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (d *Dispatcher) skip(c *call, name string, outcome AttemptOutcome) {
	c.attempts = append(c.attempts, Attempt{Provider: name, Outcome: outcome})
	d.metrics.ObserveAttempt(name, outcome, 0)
	c.span.AddEvent("provider skipped", trace.WithAttributes(
		tracing.AttrProvider.String(name),
		tracing.AttrOutcome.String(string(outcome)),
	))
}

// finish fills the audit record and the call span.
func (c *call) finish(res *Result, err error, elapsed time.Duration) {
	c.record.SessionID = c.sessionID
	c.record.LatencyMs = elapsed.Milliseconds()
	c.record.Outcome = outcomeOf(err)

	if err != nil {
		c.record.Error = err.Error()
		tracing.SetError(c.span, err, string(Classify(err)))
	} else {
		c.record.ProviderUsed = res.Provider
		c.record.TokensUsed = res.Message.TokensUsed
		c.record.Cost = res.Message.CostEstimate
		c.span.SetAttributes(
			tracing.AttrProvider.String(res.Provider),
			tracing.AttrTokensUsed.Int(res.Message.TokensUsed),
			tracing.AttrCostUSD.Float64(res.Message.CostEstimate),
		)
		c.span.SetStatus(codes.Ok, "")
	}
	c.span.SetAttributes(
		tracing.AttrOutcome.String(string(c.record.Outcome)),
		attribute.Int("relay.attempts", len(c.attempts)),
	)
}

func outcomeOf(err error) audit.Outcome {
	switch Classify(err) {
	case "":
		return audit.OutcomeSuccess
	case CategoryCaller:
		if errors.Is(err, ErrRateLimited) {
			return audit.OutcomeRateLimited
		}
		return audit.OutcomeRejected
	case CategoryCanceled:
		return audit.OutcomeCanceled
	case CategoryExhaustion:
		return audit.OutcomeExhausted
	default:
		return audit.OutcomeError
	}
}

func validateInput(text string, opts Options, maxChars int) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Message: "must not be empty"}
	}
	if n := utf8.RuneCountInString(text); maxChars > 0 && n > maxChars {
		return &ValidationError{Field: "text", Message: fmt.Sprintf("length %d exceeds limit of %d characters", n, maxChars)}
	}
	if opts.MaxTokens < 0 {
		return &ValidationError{Field: "max_tokens", Message: "must be non-negative"}
	}
	if opts.Temperature != nil && (*opts.Temperature < 0 || *opts.Temperature > 2) {
		return &ValidationError{Field: "temperature", Message: "must be between 0 and 2"}
	}
	return nil
}
