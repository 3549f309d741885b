package generic

import (
	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/providers/openai"
)

// Provider is a generic OpenAI-compatible provider adapter.
type Provider struct {
	*openai.Provider
}

// NewProvider creates a new generic OpenAI-compatible provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "generic",
			Field:    "name",
			Message:  "provider name is required",
		}
	}
	config.Kind = providers.KindGeneric

	// Local servers usually accept any bearer token.
	if config.APIKey == "" {
		config.APIKey = "not-required"
	}

	p, err := openai.NewCompatible(config)
	if err != nil {
		return nil, err
	}
	return &Provider{Provider: p}, nil
}
