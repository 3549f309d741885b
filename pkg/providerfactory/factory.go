// Package providerfactory resolves provider configuration into concrete
// adapters. Resolution happens once, when configuration is loaded; the
// dispatcher never selects an adapter by string at call time.
package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/relay/pkg/providers"
	"mercator-hq/relay/pkg/providers/anthropic"
	"mercator-hq/relay/pkg/providers/generic"
	"mercator-hq/relay/pkg/providers/openai"
)

// NewProvider creates the adapter selected by config.Kind.
//
// Supported kinds:
//   - "openai": OpenAI Chat Completions API
//   - "anthropic": Anthropic Messages API
//   - "generic": OpenAI-compatible APIs (Ollama, LM Studio, vLLM, etc.)
func NewProvider(config providers.ProviderConfig) (providers.Provider, error) {
	kind, err := providers.ParseKind(string(config.Kind))
	if err != nil {
		return nil, &providers.ConfigError{Provider: config.Name, Field: "kind", Message: err.Error()}
	}
	config.Kind = kind

	var provider providers.Provider
	switch kind {
	case providers.KindOpenAI:
		provider, err = openai.NewProvider(config)
	case providers.KindAnthropic:
		provider, err = anthropic.NewProvider(config)
	case providers.KindGeneric:
		provider, err = generic.NewProvider(config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", config.Name, err)
	}

	slog.Debug("provider created", "name", config.Name, "kind", kind)
	return provider, nil
}

// NewProviders creates every configured adapter in order. On failure the
// adapters created so far are closed.
func NewProviders(configs []providers.ProviderConfig) ([]providers.Provider, error) {
	created := make([]providers.Provider, 0, len(configs))
	for _, cfg := range configs {
		p, err := NewProvider(cfg)
		if err != nil {
			return nil, errors.Join(err, CloseAll(created))
		}
		created = append(created, p)
	}
	return created, nil
}

// CloseAll closes every provider and joins the errors.
func CloseAll(ps []providers.Provider) error {
	var errs []error
	for _, p := range ps {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close provider %q: %w", p.GetName(), err))
		}
	}
	return errors.Join(errs...)
}
