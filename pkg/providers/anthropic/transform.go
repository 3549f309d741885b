package anthropic

import (
	"errors"
	"strings"

	"mercator-hq/relay/pkg/providers"
)

// AnthropicRequest represents an Anthropic messages request.
type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
}

// AnthropicMessage represents a message in Anthropic format.
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContentBlock represents a content block in an Anthropic response.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents an Anthropic messages response.
type AnthropicResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      AnthropicUsage `json:"usage"`
}

// AnthropicUsage represents token usage in Anthropic format.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// transformRequest builds the wire request. Defaults come from the provider
// configuration when the request leaves them unset.
func transformRequest(req *providers.GenerateRequest, cfg providers.ProviderConfig) *AnthropicRequest {
	out := &AnthropicRequest{
		Model:       req.Model,
		System:      req.SystemPrompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Messages:    normalizeTurns(req.Messages()),
	}
	if out.Model == "" {
		out.Model = cfg.Model
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = cfg.MaxTokens
	}
	return out
}

// normalizeTurns enforces the Messages API shape: the first turn is from the
// user and roles alternate. Leading assistant turns are dropped and
// consecutive turns from the same role are joined.
func normalizeTurns(msgs []providers.Message) []AnthropicMessage {
	out := make([]AnthropicMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(out) == 0 && m.Role != providers.RoleUser {
			continue
		}
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, AnthropicMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// transformResponse transforms an Anthropic response to the normalized shape.
func transformResponse(resp *AnthropicResponse) (*providers.GenerateResponse, error) {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("response contained no text content")
	}

	return &providers.GenerateResponse{
		Text:         text.String(),
		Model:        resp.Model,
		FinishReason: transformStopReason(resp.StopReason),
		Usage: providers.TokenUsage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

func transformStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	case "refusal":
		return providers.FinishReasonContentFilter
	default:
		return reason
	}
}
