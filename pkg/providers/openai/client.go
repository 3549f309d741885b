package openai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"mercator-hq/relay/pkg/providers"
)

// DefaultBaseURL is the public OpenAI endpoint.
const DefaultBaseURL = "https://api.openai.com/v1"

// Provider is the OpenAI provider adapter.
type Provider struct {
	*providers.HTTPProvider
	client oai.Client
}

// NewProvider creates a new OpenAI provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "api_key",
			Message:  "API key is required for OpenAI",
		}
	}
	if config.Kind == "" {
		config.Kind = providers.KindOpenAI
	}
	return newProvider(config, DefaultBaseURL)
}

// NewCompatible creates an adapter for an OpenAI-compatible endpoint. The
// base URL is required and the API key is optional.
func NewCompatible(config providers.ProviderConfig) (*Provider, error) {
	if config.BaseURL == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "base_url",
			Message:  "base URL is required for OpenAI-compatible providers",
		}
	}
	return newProvider(config, "")
}

func newProvider(config providers.ProviderConfig, defaultBaseURL string) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: string(config.Kind),
			Field:    "name",
			Message:  "provider name is required",
		}
	}
	if config.Model == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "model",
			Message:  "default model is required",
		}
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	base := providers.NewHTTPProvider(config)

	client := oai.NewClient(
		option.WithAPIKey(config.APIKey),
		option.WithBaseURL(strings.TrimSuffix(config.BaseURL, "/")+"/"),
		option.WithHTTPClient(base.Client()),
		option.WithMaxRetries(config.MaxRetries),
	)

	slog.Info("openai provider initialized",
		"provider", config.Name,
		"kind", config.Kind,
		"base_url", config.BaseURL,
		"model", config.Model,
	)

	return &Provider{HTTPProvider: base, client: client}, nil
}

// Generate sends one turn to the Chat Completions API.
func (p *Provider) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	if err := providers.ValidateRequest(req); err != nil {
		return nil, err
	}

	params := buildParams(req, p.GetConfig())

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.mapError(ctx, err)
	}

	resp, err := transformResponse(completion)
	if err != nil {
		return nil, &providers.ParseError{Provider: p.GetName(), RawResponse: completion.RawJSON(), Cause: err}
	}

	slog.Debug("completion request succeeded",
		"provider", p.GetName(),
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
	)

	return resp, nil
}

// HealthCheck lists models. Any successful answer counts as healthy.
func (p *Provider) HealthCheck(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", p.mapError(ctx, err))
	}
	return nil
}
