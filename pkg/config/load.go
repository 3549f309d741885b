package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "RELAY_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	presetDefaults(&cfg)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention RELAY_SECTION_FIELD (e.g., RELAY_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	applyEnvOverrides(cfg, os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config, getenv func(string) string) {
	str := func(name string, dst *string) {
		if val := getenv(EnvPrefix + name); val != "" {
			*dst = val
		}
	}
	dur := func(name string, dst *time.Duration) {
		if val := getenv(EnvPrefix + name); val != "" {
			if d, err := time.ParseDuration(val); err == nil {
				*dst = d
			}
		}
	}
	num := func(name string, dst *int) {
		if val := getenv(EnvPrefix + name); val != "" {
			if i, err := strconv.Atoi(val); err == nil {
				*dst = i
			}
		}
	}
	flag := func(name string, dst *bool) {
		if val := getenv(EnvPrefix + name); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				*dst = b
			}
		}
	}

	// Server overrides
	str("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	dur("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	dur("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)

	// Dispatch overrides
	dur("DISPATCH_PROVIDER_TIMEOUT", &cfg.Dispatch.ProviderTimeout)
	num("DISPATCH_MAX_INPUT_CHARS", &cfg.Dispatch.MaxInputChars)

	// Rate limit overrides
	num("RATE_LIMIT_LIMIT", &cfg.RateLimit.Limit)
	dur("RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)

	// Conversation overrides
	str("CONVERSATION_BACKEND", &cfg.Conversation.Backend)
	str("CONVERSATION_SQLITE_PATH", &cfg.Conversation.SQLite.Path)
	str("CONVERSATION_SQLITE_DRIVER", &cfg.Conversation.SQLite.Driver)
	str("CONVERSATION_POSTGRES_DSN", &cfg.Conversation.Postgres.DSN)

	// Audit overrides
	flag("AUDIT_ENABLED", &cfg.Audit.Enabled)
	str("AUDIT_BACKEND", &cfg.Audit.Backend)
	str("AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	num("AUDIT_RETENTION_DAYS", &cfg.Audit.Retention.Days)

	// Telemetry overrides
	str("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	str("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	flag("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	flag("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	str("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)

	// Provider overrides are keyed by the configured provider name.
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		prefix := "PROVIDER_" + envName(p.Name) + "_"
		str(prefix+"API_KEY", &p.APIKey)
		str(prefix+"BASE_URL", &p.BaseURL)
		str(prefix+"MODEL", &p.Model)
		flag(prefix+"DISABLED", &p.Disabled)
	}
}

// envName converts a provider name to its environment variable form:
// "openai-primary" becomes "OPENAI_PRIMARY".
func envName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, name)
}
