package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
providers:
  - name: openai-primary
    kind: openai
    api_key: sk-test
    model: gpt-4o-mini
    priority: 1
  - name: local
    kind: generic
    base_url: http://localhost:11434/v1
    model: llama3
    priority: 2
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.Breaker.FailureThreshold != 3 || cfg.Breaker.Cooldown != 30*time.Second {
		t.Errorf("breaker defaults = %+v", cfg.Breaker)
	}
	if cfg.Health.TTL != 60*time.Second {
		t.Errorf("health TTL = %v", cfg.Health.TTL)
	}
	if cfg.RateLimit.Limit != 20 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit defaults = %+v", cfg.RateLimit)
	}
	if cfg.Conversation.CacheTTL != 5*time.Minute || cfg.Conversation.CacheMaxEntries != 10000 {
		t.Errorf("conversation defaults = %+v", cfg.Conversation)
	}
	if !cfg.Conversation.SQLite.WALMode || !cfg.Audit.Enabled || !cfg.Telemetry.Metrics.Enabled {
		t.Error("boolean defaults not applied")
	}
	if _, ok := cfg.Costs.Pricing["default"]; !ok {
		t.Error("default pricing entry missing")
	}
	if cfg.Providers[0].Timeout != DefaultProviderTimeout || cfg.Providers[0].MaxRetries != 0 {
		t.Errorf("provider defaults = %+v", cfg.Providers[0])
	}
}

func TestLoadConfig_ExplicitFalsePreserved(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalYAML+`
audit:
  enabled: false
telemetry:
  metrics:
    enabled: false
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audit.Enabled || cfg.Telemetry.Metrics.Enabled {
		t.Error("explicit false overwritten by defaults")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	if _, err := LoadConfig(writeConfig(t, "providers: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
providers:
  - name: openai-primary
    kind: openai
    model: gpt-4o-mini
`)

	// Without the key the file alone is invalid.
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation error without API key")
	}

	t.Setenv("RELAY_PROVIDER_OPENAI_PRIMARY_API_KEY", "sk-env")
	t.Setenv("RELAY_SERVER_LISTEN_ADDRESS", "0.0.0.0:9090")
	t.Setenv("RELAY_RATE_LIMIT_LIMIT", "5")
	t.Setenv("RELAY_RATE_LIMIT_WINDOW", "10s")
	t.Setenv("RELAY_CONVERSATION_BACKEND", "memory")
	t.Setenv("RELAY_AUDIT_ENABLED", "false")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}
	if cfg.Providers[0].APIKey != "sk-env" {
		t.Errorf("APIKey = %q", cfg.Providers[0].APIKey)
	}
	if cfg.Server.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("ListenAddress = %q", cfg.Server.ListenAddress)
	}
	if cfg.RateLimit.Limit != 5 || cfg.RateLimit.Window != 10*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Conversation.Backend != "memory" {
		t.Errorf("Backend = %q", cfg.Conversation.Backend)
	}
	if cfg.Audit.Enabled {
		t.Error("audit should be disabled by override")
	}
}

func TestApplyEnvOverrides_IgnoresMalformedValues(t *testing.T) {
	cfg := NewDefault()
	env := map[string]string{
		"RELAY_RATE_LIMIT_LIMIT":    "many",
		"RELAY_SERVER_READ_TIMEOUT": "soon",
	}
	applyEnvOverrides(cfg, func(k string) string { return env[k] })

	if cfg.RateLimit.Limit != DefaultRateLimit {
		t.Errorf("Limit = %d, want default", cfg.RateLimit.Limit)
	}
	if cfg.Server.ReadTimeout != DefaultReadTimeout {
		t.Errorf("ReadTimeout = %v, want default", cfg.Server.ReadTimeout)
	}
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"openai":         "OPENAI",
		"openai-primary": "OPENAI_PRIMARY",
		"claude.v2":      "CLAUDE_V2",
		"Local9":         "LOCAL9",
	}
	for in, want := range tests {
		if got := envName(in); got != want {
			t.Errorf("envName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEnabledProviders(t *testing.T) {
	cfg := &Config{Providers: []ProviderConfig{
		{Name: "a"}, {Name: "b", Disabled: true}, {Name: "c"},
	}}
	got := cfg.EnabledProviders()
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "c" {
		t.Errorf("EnabledProviders = %+v", got)
	}
}

func TestValidationErrorIsReturned(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "server:\n  listen_address: ':1'\n"))
	var verr ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
}
