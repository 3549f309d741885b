package tokens

import (
	"math"
	"sync"
	"unicode/utf8"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
)

// Estimator approximates token counts from character counts.
// It is safe for concurrent use and its ratio can be swapped at runtime.
type Estimator struct {
	mu            sync.RWMutex
	charsPerToken float64
}

// NewEstimator creates an estimator. A nil or non-positive ratio falls back
// to config.DefaultTokensCharsPerToken.
func NewEstimator(cfg *config.TokensConfig) *Estimator {
	e := &Estimator{}
	e.Update(cfg)
	return e
}

// Update replaces the characters-per-token ratio (hot-reload support).
func (e *Estimator) Update(cfg *config.TokensConfig) {
	ratio := config.DefaultTokensCharsPerToken
	if cfg != nil && cfg.CharsPerToken > 0 {
		ratio = cfg.CharsPerToken
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.charsPerToken = ratio
}

// CharsPerToken returns the current ratio.
func (e *Estimator) CharsPerToken() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.charsPerToken
}

// EstimateText returns ceil(characters / ratio). Empty text is 0 tokens and
// any non-empty text is at least 1.
func (e *Estimator) EstimateText(text string) int {
	chars := utf8.RuneCountInString(text)
	if chars == 0 {
		return 0
	}

	n := int(math.Ceil(float64(chars) / e.CharsPerToken()))
	return max(n, 1)
}

// EstimateMessages sums EstimateText over message contents.
func (e *Estimator) EstimateMessages(messages []providers.Message) int {
	total := 0
	for _, m := range messages {
		total += e.EstimateText(m.Content)
	}
	return total
}

// EstimateRequest estimates the prompt tokens of a provider request: the
// system prompt, the history and the new user turn.
func (e *Estimator) EstimateRequest(req *providers.GenerateRequest) int {
	if req == nil {
		return 0
	}
	return e.EstimateText(req.SystemPrompt) + e.EstimateMessages(req.Messages())
}

// Usage returns the token usage of an exchange. Provider-reported usage wins
// when it is present; otherwise prompt and completion are estimated.
func (e *Estimator) Usage(req *providers.GenerateRequest, resp *providers.GenerateResponse) providers.TokenUsage {
	if resp != nil && resp.Usage.TotalTokens > 0 {
		return resp.Usage
	}
	if resp != nil && resp.Usage.PromptTokens+resp.Usage.CompletionTokens > 0 {
		u := resp.Usage
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
		return u
	}

	u := providers.TokenUsage{PromptTokens: e.EstimateRequest(req)}
	if resp != nil {
		u.CompletionTokens = e.EstimateText(resp.Text)
	}
	u.TotalTokens = u.PromptTokens + u.CompletionTokens
	return u
}
