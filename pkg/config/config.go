package config

import "time"

// Config is the root configuration structure for Relay.
type Config struct {
	// Server contains HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Providers lists every configured provider. Order breaks priority ties.
	Providers []ProviderConfig `yaml:"providers"`

	// Dispatch contains fallback dispatcher settings.
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Breaker contains circuit breaker settings shared by all providers.
	Breaker BreakerConfig `yaml:"breaker"`

	// Health contains provider health cache settings.
	Health HealthConfig `yaml:"health"`

	// RateLimit contains per-session rate limiter settings.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Conversation contains conversation store settings.
	Conversation ConversationConfig `yaml:"conversation"`

	// Tokens contains token estimation settings.
	Tokens TokensConfig `yaml:"tokens"`

	// Costs contains the provider price table.
	Costs CostsConfig `yaml:"costs"`

	// Audit contains dispatch record settings.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains logging, metrics and tracing settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Secrets contains ${secret:name} resolution settings.
	Secrets SecretsConfig `yaml:"secrets"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	// It must exceed the worst-case dispatch time.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// MaxBodyBytes limits request body size.
	// Default: 1048576 (1MB)
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TLS enables HTTPS.
	TLS TLSConfig `yaml:"tls"`
}

// TLSConfig contains server certificate configuration.
type TLSConfig struct {
	// Enabled serves HTTPS instead of HTTP.
	Enabled bool `yaml:"enabled"`

	// CertFile is the PEM-encoded certificate chain.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the PEM-encoded private key.
	KeyFile string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3".
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// ReloadInterval is how often the files are checked for renewal.
	// Default: 5m
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// ProviderConfig contains configuration for one provider.
type ProviderConfig struct {
	// Name uniquely identifies the provider (e.g. "openai-primary").
	Name string `yaml:"name"`

	// Kind selects the adapter: "openai", "anthropic" or "generic".
	Kind string `yaml:"kind"`

	// Priority orders providers; lower values are tried first.
	Priority int `yaml:"priority"`

	// Disabled excludes the provider without removing its configuration.
	Disabled bool `yaml:"disabled"`

	// BaseURL overrides the adapter's default endpoint. Required for generic.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates requests. Optional for generic.
	APIKey string `yaml:"api_key"`

	// Model is the default model for this provider.
	Model string `yaml:"model"`

	// MaxTokens is the default completion limit.
	// Default: 1024
	MaxTokens int `yaml:"max_tokens"`

	// Timeout bounds one HTTP request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries is the number of in-adapter retries. Fallback across
	// providers is the primary retry mechanism, so this defaults to 0.
	MaxRetries int `yaml:"max_retries"`
}

// DispatchConfig contains fallback dispatcher configuration.
type DispatchConfig struct {
	// SystemPrompt is sent with every request.
	SystemPrompt string `yaml:"system_prompt"`

	// ProviderTimeout bounds a single provider attempt.
	// Default: 30s
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// MaxInputChars rejects longer user input.
	// Default: 8000
	MaxInputChars int `yaml:"max_input_chars"`

	// HistoryMessages bounds the context window by message count.
	// Default: 20
	HistoryMessages int `yaml:"history_messages"`

	// HistoryTokens bounds the context window by estimated tokens.
	// Default: 3000
	HistoryTokens int `yaml:"history_tokens"`

	// ExhaustedMessage is persisted as the assistant reply when every
	// provider fails.
	ExhaustedMessage string `yaml:"exhausted_message"`
}

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	// Default: 3
	FailureThreshold int `yaml:"failure_threshold"`

	// FailureWindow is the period within which failures are counted.
	// Default: 60s
	FailureWindow time.Duration `yaml:"failure_window"`

	// Cooldown is how long an open breaker excludes its provider.
	// Default: 30s
	Cooldown time.Duration `yaml:"cooldown"`

	// HalfOpen admits a single trial call after cooldown instead of closing.
	HalfOpen bool `yaml:"half_open"`
}

// HealthConfig contains provider health cache configuration.
type HealthConfig struct {
	// TTL is how long a health result is trusted.
	// Default: 60s
	TTL time.Duration `yaml:"ttl"`

	// ProbeTimeout bounds one health probe.
	// Default: 5s
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// RateLimitConfig contains per-session rate limit configuration.
type RateLimitConfig struct {
	// Limit is the number of calls admitted per window.
	// Default: 20
	Limit int `yaml:"limit"`

	// Window is the fixed window length.
	// Default: 60s
	Window time.Duration `yaml:"window"`

	// SweepSchedule is the cron spec for dropping expired buckets.
	// Default: "@every 5m"
	SweepSchedule string `yaml:"sweep_schedule"`
}

// ConversationConfig contains conversation store configuration.
type ConversationConfig struct {
	// Backend selects the durable store: "memory", "sqlite" or "postgres".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// CacheTTL bounds cached sessions and message windows.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheMaxEntries bounds each cache.
	// Default: 10000
	CacheMaxEntries int `yaml:"cache_max_entries"`

	// SQLite contains SQLite backend configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Postgres contains PostgreSQL backend configuration.
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite database configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`

	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait for locks.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL connection configuration.
type PostgresConfig struct {
	// DSN is a libpq connection string or URL.
	DSN string `yaml:"dsn"`
}

// TokensConfig contains token estimation configuration.
type TokensConfig struct {
	// CharsPerToken is the character-to-token ratio.
	// Default: 4.0
	CharsPerToken float64 `yaml:"chars_per_token"`
}

// CostsConfig contains cost estimation configuration.
type CostsConfig struct {
	// InputRatio is the assumed share of tokens that are input tokens.
	// Default: 0.75
	InputRatio float64 `yaml:"input_ratio"`

	// Pricing maps provider name to its prices. The "default" entry prices
	// providers that have none.
	Pricing map[string]PricingConfig `yaml:"pricing"`
}

// PricingConfig contains prices in USD per 1000 tokens.
type PricingConfig struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// AuditConfig contains dispatch record configuration.
type AuditConfig struct {
	// Enabled turns dispatch records on.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Backend selects record storage: "memory" or "sqlite".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite storage configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// Recorder contains asynchronous recorder configuration.
	Recorder RecorderConfig `yaml:"recorder"`

	// Retention contains record pruning configuration.
	Retention RetentionConfig `yaml:"retention"`
}

// RecorderConfig contains asynchronous record writer configuration.
type RecorderConfig struct {
	// BufferSize is the record queue capacity.
	// Default: 1000
	BufferSize int `yaml:"buffer_size"`

	// WriteTimeout bounds one storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RetentionConfig contains record retention configuration.
type RetentionConfig struct {
	// Days is how long records are kept. A negative value keeps them forever.
	// Default: 30
	Days int `yaml:"retention_days"`

	// PruneSchedule is the cron spec for the pruning job.
	// Default: "0 3 * * *"
	PruneSchedule string `yaml:"prune_schedule"`
}

// SecretsConfig controls how ${secret:name} references in provider API
// keys, base URLs and the Postgres DSN are resolved.
type SecretsConfig struct {
	// EnvPrefix is prepended to the upper-cased secret name to form the
	// environment variable that is consulted.
	// Default: "RELAY_SECRET_"
	EnvPrefix string `yaml:"env_prefix"`

	// Dir holds one file per secret, named after the secret. Files must be
	// mode 0600 or 0400. Checked before the environment when set.
	Dir string `yaml:"dir"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled exposes metrics.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric name.
	// Default: "relay"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains OpenTelemetry tracing configuration.
type TracingConfig struct {
	// Enabled turns on span export.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address (host:port).
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of traces sampled.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported as service.name.
	// Default: "relay"
	ServiceName string `yaml:"service_name"`
}

// EnabledProviders returns the providers that are not disabled, in file order.
func (c *Config) EnabledProviders() []ProviderConfig {
	out := make([]ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	return out
}
