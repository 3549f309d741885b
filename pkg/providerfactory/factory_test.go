package providerfactory

import (
	"errors"
	"testing"

	"mercator-hq/relay/pkg/providers"
)

func TestNewProvider_Kinds(t *testing.T) {
	tests := []struct {
		name string
		cfg  providers.ProviderConfig
		want providers.Kind
	}{
		{"openai", providers.ProviderConfig{Name: "a", Kind: providers.KindOpenAI, APIKey: "k", Model: "m"}, providers.KindOpenAI},
		{"anthropic", providers.ProviderConfig{Name: "b", Kind: providers.KindAnthropic, APIKey: "k", Model: "m"}, providers.KindAnthropic},
		{"generic", providers.ProviderConfig{Name: "c", Kind: "GENERIC", BaseURL: "http://localhost:11434/v1", Model: "m"}, providers.KindGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if err != nil {
				t.Fatalf("NewProvider: %v", err)
			}
			defer p.Close()
			if p.GetKind() != tt.want {
				t.Errorf("kind = %q, want %q", p.GetKind(), tt.want)
			}
			if p.GetName() != tt.cfg.Name {
				t.Errorf("name = %q, want %q", p.GetName(), tt.cfg.Name)
			}
		})
	}
}

func TestNewProvider_UnknownKind(t *testing.T) {
	_, err := NewProvider(providers.ProviderConfig{Name: "x", Kind: "cohere"})

	var cerr *providers.ConfigError
	if !errors.As(err, &cerr) || cerr.Field != "kind" {
		t.Fatalf("expected kind ConfigError, got %v", err)
	}
}

func TestNewProviders_StopsOnFirstError(t *testing.T) {
	_, err := NewProviders([]providers.ProviderConfig{
		{Name: "ok", Kind: providers.KindOpenAI, APIKey: "k", Model: "m"},
		{Name: "bad", Kind: providers.KindAnthropic},
	})
	if err == nil {
		t.Fatal("expected error for provider without API key")
	}
}
