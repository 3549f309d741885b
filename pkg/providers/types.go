package providers

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one adapter variant. The set is closed.
type Kind string

const (
	// KindOpenAI is the OpenAI Chat Completions API.
	KindOpenAI Kind = "openai"

	// KindAnthropic is the Anthropic Messages API.
	KindAnthropic Kind = "anthropic"

	// KindGeneric is any OpenAI-compatible endpoint (Ollama, vLLM, LM Studio).
	KindGeneric Kind = "generic"
)

// Kinds lists every supported adapter kind.
var Kinds = []Kind{KindOpenAI, KindAnthropic, KindGeneric}

// ParseKind resolves a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown provider kind %q (must be one of: openai, anthropic, generic)", s)
}

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one normalized conversational turn.
type Message struct {
	// Role is RoleUser or RoleAssistant. System text travels in GenerateRequest.SystemPrompt.
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// TokenUsage is the token accounting reported by a provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateRequest is the normalized outbound call.
type GenerateRequest struct {
	// SystemPrompt is sent ahead of the history. May be empty.
	SystemPrompt string

	// History is the bounded context window, oldest first.
	History []Message

	// UserText is the new user turn.
	UserText string

	// Model overrides the provider's configured default model when set.
	Model string

	// MaxTokens bounds the completion length. Zero uses the provider default.
	MaxTokens int

	// Temperature controls sampling. Nil uses the provider default.
	Temperature *float64
}

// Messages returns the history followed by the user turn.
func (r *GenerateRequest) Messages() []Message {
	msgs := make([]Message, 0, len(r.History)+1)
	msgs = append(msgs, r.History...)
	return append(msgs, Message{Role: RoleUser, Content: r.UserText})
}

// GenerateResponse is the normalized reply.
type GenerateResponse struct {
	// Text is the generated assistant text.
	Text string

	// Model is the model that produced the reply.
	Model string

	// FinishReason is why generation stopped (stop, length, content_filter).
	FinishReason string

	// Usage is the provider-reported token usage. Zero when not reported.
	Usage TokenUsage
}

// ProviderConfig configures a single adapter instance.
type ProviderConfig struct {
	// Name is the unique provider identifier used in logs, metrics and records.
	Name string

	// Kind selects the adapter variant.
	Kind Kind

	// BaseURL is the API endpoint base URL. Empty uses the kind's default.
	BaseURL string

	// APIKey is the authentication key. Optional for KindGeneric.
	APIKey string

	// Model is the default model when the request does not name one.
	Model string

	// MaxTokens is the default completion bound.
	MaxTokens int

	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration

	// MaxRetries is the number of transport-level retries. Zero disables them.
	MaxRetries int

	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Finish reason constants.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
)

// Default connection pool values applied by ApplyDefaults.
const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxTokens           = 1024
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
)

// ApplyDefaults fills zero-valued fields.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = DefaultMaxIdleConns
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}
	if c.IdleConnTimeout <= 0 {
		c.IdleConnTimeout = DefaultIdleConnTimeout
	}
}
