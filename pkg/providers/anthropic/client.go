package anthropic

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"mercator-hq/relay/pkg/providers"
)

// Provider is the Anthropic provider adapter.
type Provider struct {
	*providers.HTTPProvider
}

const (
	// DefaultBaseURL is the public Anthropic endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAnthropicVersion is the API version header value.
	DefaultAnthropicVersion = "2023-06-01"
)

// NewProvider creates a new Anthropic provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "anthropic",
			Field:    "name",
			Message:  "provider name is required",
		}
	}
	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "api_key",
			Message:  "API key is required for Anthropic",
		}
	}
	if config.Model == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "model",
			Message:  "default model is required for Anthropic",
		}
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.Kind = providers.KindAnthropic

	p := &Provider{HTTPProvider: providers.NewHTTPProvider(config)}

	slog.Info("anthropic provider initialized",
		"provider", config.Name,
		"base_url", config.BaseURL,
		"model", config.Model,
	)

	return p, nil
}

// Generate sends one turn to the Messages API.
func (p *Provider) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	if err := providers.ValidateRequest(req); err != nil {
		return nil, err
	}

	cfg := p.GetConfig()
	anthropicReq := transformRequest(req, cfg)

	var anthropicResp AnthropicResponse
	if err := p.DoJSONRequest(ctx, http.MethodPost, cfg.BaseURL+"/v1/messages", anthropicReq, &anthropicResp, p.headers()); err != nil {
		return nil, err
	}

	resp, err := transformResponse(&anthropicResp)
	if err != nil {
		return nil, &providers.ParseError{Provider: p.GetName(), Cause: err}
	}

	slog.Debug("completion request succeeded",
		"provider", p.GetName(),
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
	)

	return resp, nil
}

// HealthCheck lists models, the cheapest authenticated call the API offers.
func (p *Provider) HealthCheck(ctx context.Context) error {
	var models struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	url := p.GetConfig().BaseURL + "/v1/models?limit=1"
	if err := p.DoJSONRequest(ctx, http.MethodGet, url, nil, &models, p.headers()); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (p *Provider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.GetConfig().APIKey,
		"anthropic-version": DefaultAnthropicVersion,
	}
}
