package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for request IDs.
	RequestIDKey contextKey = "request_id"

	// SessionIDKey is the context key for conversation session IDs.
	SessionIDKey contextKey = "session_id"

	// ProviderKey is the context key for provider names.
	ProviderKey contextKey = "provider"

	// ModelKey is the context key for model names.
	ModelKey contextKey = "model"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// WithSessionID adds a session ID to the context.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// GetSessionID retrieves the session ID from the context.
func GetSessionID(ctx context.Context) string {
	if v, ok := ctx.Value(SessionIDKey).(string); ok {
		return v
	}
	return ""
}

// WithProvider adds a provider name to the context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

// GetProvider retrieves the provider name from the context.
func GetProvider(ctx context.Context) string {
	if v, ok := ctx.Value(ProviderKey).(string); ok {
		return v
	}
	return ""
}

// WithModel adds a model name to the context.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// GetModel retrieves the model name from the context.
func GetModel(ctx context.Context) string {
	if v, ok := ctx.Value(ModelKey).(string); ok {
		return v
	}
	return ""
}

// contextAttrs returns the context fields present in ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var attrs []slog.Attr
	if v := GetRequestID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(RequestIDKey), v))
	}
	if v := GetSessionID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(SessionIDKey), v))
	}
	if v := GetProvider(ctx); v != "" {
		attrs = append(attrs, slog.String(string(ProviderKey), v))
	}
	if v := GetModel(ctx); v != "" {
		attrs = append(attrs, slog.String(string(ModelKey), v))
	}
	return attrs
}

// ContextHandler wraps a slog.Handler, appending context fields to every
// record and redacting secrets from attribute values.
type ContextHandler struct {
	next     slog.Handler
	redactor *Redactor
}

// NewContextHandler wraps next. A nil redactor disables redaction.
func NewContextHandler(next slog.Handler, redactor *Redactor) *ContextHandler {
	return &ContextHandler{next: next, redactor: redactor}
}

// Enabled implements slog.Handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	present := make(map[string]bool)
	if h.redactor != nil {
		out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
		r.Attrs(func(a slog.Attr) bool {
			present[a.Key] = true
			out.AddAttrs(h.redactor.RedactAttr(a))
			return true
		})
		r = out
	} else {
		r.Attrs(func(a slog.Attr) bool {
			present[a.Key] = true
			return true
		})
	}

	for _, a := range contextAttrs(ctx) {
		if !present[a.Key] {
			r.AddAttrs(a)
		}
	}
	return h.next.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if h.redactor != nil {
		redacted := make([]slog.Attr, len(attrs))
		for i, a := range attrs {
			redacted[i] = h.redactor.RedactAttr(a)
		}
		attrs = redacted
	}
	return &ContextHandler{next: h.next.WithAttrs(attrs), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{next: h.next.WithGroup(name), redactor: h.redactor}
}
