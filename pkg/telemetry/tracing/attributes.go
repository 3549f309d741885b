package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys in the relay namespace.
const (
	AttrSessionID          = attribute.Key("relay.session_id")
	AttrProvider           = attribute.Key("relay.provider")
	AttrProviderKind       = attribute.Key("relay.provider.kind")
	AttrAttemptIndex       = attribute.Key("relay.attempt.index")
	AttrOutcome            = attribute.Key("relay.outcome")
	AttrLatencyMs          = attribute.Key("relay.latency_ms")
	AttrTokensUsed         = attribute.Key("relay.tokens_used")
	AttrCostUSD            = attribute.Key("relay.cost_usd")
	AttrRateLimitRemaining = attribute.Key("relay.rate_limit.remaining")
	AttrErrorCategory      = attribute.Key("relay.error.category")
)

// SetError records err on span, tags its category and marks the span failed.
func SetError(span trace.Span, err error, category string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	if category != "" {
		span.SetAttributes(AttrErrorCategory.String(category))
	}
	span.SetStatus(codes.Error, err.Error())
}

// SetStatus marks span OK when err is nil and failed otherwise.
func SetStatus(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
