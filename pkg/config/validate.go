package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateDispatch(&cfg.Dispatch)...)
	errs = append(errs, validateResilience(cfg)...)
	errs = append(errs, validateConversation(&cfg.Conversation)...)
	errs = append(errs, validateCosts(&cfg.Tokens, &cfg.Costs)...)
	errs = append(errs, validateAudit(&cfg.Audit)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateServer validates HTTP server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.idle_timeout", Message: "idle timeout must be positive"})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 { // 10MB is excessive
		errs = append(errs, FieldError{
			Field:   "server.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_body_bytes",
			Message: "max body bytes must be non-negative",
		})
	}

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.cert_file", Message: "cert file is required when TLS is enabled"})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{Field: "server.tls.key_file", Message: "key file is required when TLS is enabled"})
		}
		if cfg.TLS.MinVersion != "1.2" && cfg.TLS.MinVersion != "1.3" {
			errs = append(errs, FieldError{
				Field:   "server.tls.min_version",
				Message: fmt.Sprintf("invalid TLS version %q: must be '1.2' or '1.3'", cfg.TLS.MinVersion),
			})
		}
		if cfg.TLS.ReloadInterval < 0 {
			errs = append(errs, FieldError{Field: "server.tls.reload_interval", Message: "reload interval must be positive"})
		}
	}

	return errs
}

var validKinds = map[string]bool{"openai": true, "anthropic": true, "generic": true}

// validateProviders validates provider configurations.
func validateProviders(providers []ProviderConfig) []FieldError {
	var errs []FieldError

	enabled := 0
	seen := make(map[string]bool, len(providers))

	for i, provider := range providers {
		prefix := fmt.Sprintf("providers[%d]", i)
		if provider.Name != "" {
			prefix = fmt.Sprintf("providers.%s", provider.Name)
		}

		if provider.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "name is required"})
		} else if seen[provider.Name] {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "duplicate provider name"})
		}
		seen[provider.Name] = true

		kind := strings.ToLower(strings.TrimSpace(provider.Kind))
		if !validKinds[kind] {
			errs = append(errs, FieldError{
				Field:   prefix + ".kind",
				Message: fmt.Sprintf("invalid kind %q: must be 'openai', 'anthropic', or 'generic'", provider.Kind),
			})
		}

		if provider.Disabled {
			continue
		}
		enabled++

		if provider.Model == "" {
			errs = append(errs, FieldError{Field: prefix + ".model", Message: "model is required"})
		}

		if provider.BaseURL == "" {
			if kind == "generic" {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: "base URL is required for generic providers",
				})
			}
		} else if u, err := url.Parse(provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".base_url",
				Message: fmt.Sprintf("invalid URL %q", provider.BaseURL),
			})
		}

		// API keys may be injected by environment overrides, so only the
		// hosted kinds require one after overrides are applied.
		if provider.APIKey == "" && (kind == "openai" || kind == "anthropic") {
			errs = append(errs, FieldError{
				Field:   prefix + ".api_key",
				Message: fmt.Sprintf("API key is required (set it in the file or via %sPROVIDER_%s_API_KEY)", EnvPrefix, envName(provider.Name)),
			})
		}

		if provider.Timeout < 0 {
			errs = append(errs, FieldError{Field: prefix + ".timeout", Message: "timeout must be positive"})
		}
		if provider.MaxTokens < 0 {
			errs = append(errs, FieldError{Field: prefix + ".max_tokens", Message: "max tokens must be non-negative"})
		}
		if provider.MaxRetries < 0 {
			errs = append(errs, FieldError{Field: prefix + ".max_retries", Message: "max retries must be non-negative"})
		}
		if provider.MaxRetries > 10 {
			errs = append(errs, FieldError{Field: prefix + ".max_retries", Message: "max retries exceeds reasonable limit (10)"})
		}
	}

	if enabled == 0 {
		errs = append(errs, FieldError{
			Field:   "providers",
			Message: "at least one enabled provider must be configured",
		})
	}

	return errs
}

// validateDispatch validates dispatcher configuration.
func validateDispatch(cfg *DispatchConfig) []FieldError {
	var errs []FieldError

	if cfg.ProviderTimeout <= 0 {
		errs = append(errs, FieldError{Field: "dispatch.provider_timeout", Message: "provider timeout must be positive"})
	}
	if cfg.MaxInputChars <= 0 {
		errs = append(errs, FieldError{Field: "dispatch.max_input_chars", Message: "max input chars must be positive"})
	}
	if cfg.HistoryMessages < 0 {
		errs = append(errs, FieldError{Field: "dispatch.history_messages", Message: "history messages must be non-negative"})
	}
	if cfg.HistoryTokens < 0 {
		errs = append(errs, FieldError{Field: "dispatch.history_tokens", Message: "history tokens must be non-negative"})
	}

	return errs
}

// validateResilience validates breaker, health and rate limit configuration.
func validateResilience(cfg *Config) []FieldError {
	var errs []FieldError

	if cfg.Breaker.FailureThreshold < 1 {
		errs = append(errs, FieldError{Field: "breaker.failure_threshold", Message: "failure threshold must be at least 1"})
	}
	if cfg.Breaker.FailureWindow <= 0 {
		errs = append(errs, FieldError{Field: "breaker.failure_window", Message: "failure window must be positive"})
	}
	if cfg.Breaker.Cooldown <= 0 {
		errs = append(errs, FieldError{Field: "breaker.cooldown", Message: "cooldown must be positive"})
	}

	if cfg.Health.TTL <= 0 {
		errs = append(errs, FieldError{Field: "health.ttl", Message: "TTL must be positive"})
	}
	if cfg.Health.ProbeTimeout <= 0 {
		errs = append(errs, FieldError{Field: "health.probe_timeout", Message: "probe timeout must be positive"})
	}
	if cfg.Health.ProbeTimeout > time.Minute {
		errs = append(errs, FieldError{Field: "health.probe_timeout", Message: "probe timeout exceeds reasonable limit (60s)"})
	}

	if cfg.RateLimit.Limit < 1 {
		errs = append(errs, FieldError{Field: "rate_limit.limit", Message: "limit must be at least 1"})
	}
	if cfg.RateLimit.Window < time.Second {
		errs = append(errs, FieldError{Field: "rate_limit.window", Message: "window must be at least 1s"})
	}
	errs = append(errs, validateSchedule("rate_limit.sweep_schedule", cfg.RateLimit.SweepSchedule)...)

	return errs
}

// validateConversation validates conversation store configuration.
func validateConversation(cfg *ConversationConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		errs = append(errs, validateSQLite("conversation.sqlite", &cfg.SQLite)...)
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "conversation.postgres.dsn",
				Message: "DSN is required when backend is 'postgres'",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "conversation.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory', 'sqlite', or 'postgres'", cfg.Backend),
		})
	}

	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{Field: "conversation.cache_ttl", Message: "cache TTL must be non-negative"})
	}
	if cfg.CacheMaxEntries < 0 {
		errs = append(errs, FieldError{Field: "conversation.cache_max_entries", Message: "cache size must be non-negative"})
	}

	return errs
}

func validateSQLite(prefix string, cfg *SQLiteConfig) []FieldError {
	var errs []FieldError
	if cfg.Path == "" {
		errs = append(errs, FieldError{Field: prefix + ".path", Message: "path is required"})
	}
	if cfg.Driver != "sqlite" && cfg.Driver != "sqlite3" {
		errs = append(errs, FieldError{
			Field:   prefix + ".driver",
			Message: fmt.Sprintf("invalid driver %q: must be 'sqlite' or 'sqlite3'", cfg.Driver),
		})
	}
	if cfg.BusyTimeout < 0 {
		errs = append(errs, FieldError{Field: prefix + ".busy_timeout", Message: "busy timeout must be non-negative"})
	}
	return errs
}

// validateCosts validates token and pricing configuration.
func validateCosts(tokens *TokensConfig, costs *CostsConfig) []FieldError {
	var errs []FieldError

	if tokens.CharsPerToken <= 0 {
		errs = append(errs, FieldError{Field: "tokens.chars_per_token", Message: "chars per token must be positive"})
	}
	if costs.InputRatio < 0 || costs.InputRatio > 1 {
		errs = append(errs, FieldError{Field: "costs.input_ratio", Message: "input ratio must be between 0.0 and 1.0"})
	}
	for name, p := range costs.Pricing {
		if p.InputPer1K < 0 || p.OutputPer1K < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("costs.pricing.%s", name),
				Message: "prices must be non-negative",
			})
		}
	}

	return errs
}

// validateAudit validates dispatch record configuration.
func validateAudit(cfg *AuditConfig) []FieldError {
	var errs []FieldError
	if !cfg.Enabled {
		return errs
	}

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		errs = append(errs, validateSQLite("audit.sqlite", &cfg.SQLite)...)
	default:
		errs = append(errs, FieldError{
			Field:   "audit.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", cfg.Backend),
		})
	}

	if cfg.Recorder.BufferSize < 1 {
		errs = append(errs, FieldError{Field: "audit.recorder.buffer_size", Message: "buffer size must be at least 1"})
	}
	if cfg.Recorder.WriteTimeout <= 0 {
		errs = append(errs, FieldError{Field: "audit.recorder.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.Retention.Days > 0 {
		errs = append(errs, validateSchedule("audit.retention.prune_schedule", cfg.Retention.PruneSchedule)...)
	}

	return errs
}

func validateSchedule(field, spec string) []FieldError {
	if _, err := cron.ParseStandard(spec); err != nil {
		return []FieldError{{
			Field:   field,
			Message: fmt.Sprintf("invalid cron schedule %q: %v", spec, err),
		}}
	}
	return nil
}

// validateTelemetry validates observability configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "tracing endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1.0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
