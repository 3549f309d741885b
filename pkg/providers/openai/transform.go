package openai

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"mercator-hq/relay/pkg/providers"
)

// buildParams converts a normalized request into SDK params. Defaults come
// from the provider configuration.
func buildParams(req *providers.GenerateRequest, cfg providers.ProviderConfig) oai.ChatCompletionNewParams {
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages() {
		switch m.Role {
		case providers.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(m.Content))
		default:
			messages = append(messages, oai.UserMessage(m.Content))
		}
	}

	model := req.Model
	if model == "" {
		model = cfg.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = cfg.MaxTokens
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(maxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = param.NewOpt(*req.Temperature)
	}
	return params
}

// transformResponse normalizes a chat completion.
func transformResponse(resp *oai.ChatCompletion) (*providers.GenerateResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("response contained no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Content == "" {
		return nil, errors.New("response contained no text content")
	}

	return &providers.GenerateResponse{
		Text:         choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		Usage: providers.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// mapError converts SDK errors into the typed provider errors.
func (p *Provider) mapError(ctx context.Context, err error) error {
	name := p.GetName()

	if ctx.Err() != nil {
		return &providers.TimeoutError{Provider: name, Timeout: p.GetConfig().Timeout, Cause: ctx.Err()}
	}

	var apiErr *oai.Error
	if !errors.As(err, &apiErr) {
		return &providers.ProviderError{Provider: name, Message: "request failed", Cause: err}
	}

	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &providers.AuthError{Provider: name, Message: apiErr.Error()}
	case http.StatusTooManyRequests:
		var retryAfter time.Duration
		if apiErr.Response != nil {
			if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("Retry-After")); convErr == nil {
				retryAfter = time.Duration(secs) * time.Second
			}
		}
		return &providers.RateLimitError{Provider: name, RetryAfter: retryAfter, Message: apiErr.Error()}
	default:
		return &providers.ProviderError{
			Provider:   name,
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Error(),
			Cause:      err,
		}
	}
}
