package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultMaxBodyBytes    = 1048576 // 1MB
	DefaultTLSMinVersion   = "1.3"
	DefaultTLSReload       = 5 * time.Minute

	// Provider defaults
	DefaultProviderTimeout   = 30 * time.Second
	DefaultProviderMaxTokens = 1024

	// Dispatch defaults
	DefaultSystemPrompt     = "You are a helpful assistant."
	DefaultProviderAttempt  = 30 * time.Second
	DefaultMaxInputChars    = 8000
	DefaultHistoryMessages  = 20
	DefaultHistoryTokens    = 3000
	DefaultExhaustedMessage = "Sorry, no assistant is available right now. Please try again shortly."

	// Breaker defaults
	DefaultBreakerFailureThreshold = 3
	DefaultBreakerFailureWindow    = 60 * time.Second
	DefaultBreakerCooldown         = 30 * time.Second

	// Health defaults
	DefaultHealthTTL          = 60 * time.Second
	DefaultHealthProbeTimeout = 5 * time.Second

	// Rate limit defaults
	DefaultRateLimit              = 20
	DefaultRateLimitWindow        = 60 * time.Second
	DefaultRateLimitSweepSchedule = "@every 5m"

	// Conversation defaults
	DefaultConversationBackend    = "sqlite"
	DefaultConversationCacheTTL   = 5 * time.Minute
	DefaultConversationCacheSize  = 10000
	DefaultConversationSQLitePath = "data/conversations.db"
	DefaultSQLiteDriver           = "sqlite"
	DefaultSQLiteWALMode          = true
	DefaultSQLiteBusyTimeout      = 5 * time.Second

	// Processing defaults
	DefaultTokensCharsPerToken = 4.0
	DefaultCostsInputRatio     = 0.75
	DefaultCostsPricing        = 0.001 // $0.001 per 1K tokens

	// Audit defaults
	DefaultAuditEnabled       = true
	DefaultAuditBackend       = "sqlite"
	DefaultAuditSQLitePath    = "data/audit.db"
	DefaultAuditBufferSize    = 1000
	DefaultAuditWriteTimeout  = 5 * time.Second
	DefaultAuditRetentionDays = 30
	DefaultAuditPruneSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel        = "info"
	DefaultLoggingFormat       = "json"
	DefaultMetricsEnabled      = true
	DefaultPrometheusPath      = "/metrics"
	DefaultMetricsNamespace    = "relay"
	DefaultTracingSamplingRate = 1.0
	DefaultTracingServiceName  = "relay"

	// Secrets defaults
	DefaultSecretsEnvPrefix = "RELAY_SECRET_"
)

// presetDefaults sets boolean fields whose default is true. It runs before
// YAML decoding so an explicit false in the file is preserved.
func presetDefaults(cfg *Config) {
	cfg.Conversation.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Audit.Enabled = DefaultAuditEnabled
	cfg.Audit.SQLite.WALMode = DefaultSQLiteWALMode
	cfg.Telemetry.Metrics.Enabled = DefaultMetricsEnabled
}

// NewDefault returns a configuration with every default applied and no
// providers.
func NewDefault() *Config {
	cfg := &Config{}
	presetDefaults(cfg)
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Server.TLS.MinVersion == "" {
		cfg.Server.TLS.MinVersion = DefaultTLSMinVersion
	}
	if cfg.Server.TLS.ReloadInterval == 0 {
		cfg.Server.TLS.ReloadInterval = DefaultTLSReload
	}

	// Provider defaults - applied to each provider
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.Timeout == 0 {
			p.Timeout = DefaultProviderTimeout
		}
		if p.MaxTokens == 0 {
			p.MaxTokens = DefaultProviderMaxTokens
		}
	}

	// Dispatch defaults
	if cfg.Dispatch.SystemPrompt == "" {
		cfg.Dispatch.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.Dispatch.ProviderTimeout == 0 {
		cfg.Dispatch.ProviderTimeout = DefaultProviderAttempt
	}
	if cfg.Dispatch.MaxInputChars == 0 {
		cfg.Dispatch.MaxInputChars = DefaultMaxInputChars
	}
	if cfg.Dispatch.HistoryMessages == 0 {
		cfg.Dispatch.HistoryMessages = DefaultHistoryMessages
	}
	if cfg.Dispatch.HistoryTokens == 0 {
		cfg.Dispatch.HistoryTokens = DefaultHistoryTokens
	}
	if cfg.Dispatch.ExhaustedMessage == "" {
		cfg.Dispatch.ExhaustedMessage = DefaultExhaustedMessage
	}

	// Breaker defaults
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = DefaultBreakerFailureThreshold
	}
	if cfg.Breaker.FailureWindow == 0 {
		cfg.Breaker.FailureWindow = DefaultBreakerFailureWindow
	}
	if cfg.Breaker.Cooldown == 0 {
		cfg.Breaker.Cooldown = DefaultBreakerCooldown
	}

	// Health defaults
	if cfg.Health.TTL == 0 {
		cfg.Health.TTL = DefaultHealthTTL
	}
	if cfg.Health.ProbeTimeout == 0 {
		cfg.Health.ProbeTimeout = DefaultHealthProbeTimeout
	}

	// Rate limit defaults
	if cfg.RateLimit.Limit == 0 {
		cfg.RateLimit.Limit = DefaultRateLimit
	}
	if cfg.RateLimit.Window == 0 {
		cfg.RateLimit.Window = DefaultRateLimitWindow
	}
	if cfg.RateLimit.SweepSchedule == "" {
		cfg.RateLimit.SweepSchedule = DefaultRateLimitSweepSchedule
	}

	// Conversation defaults
	if cfg.Conversation.Backend == "" {
		cfg.Conversation.Backend = DefaultConversationBackend
	}
	if cfg.Conversation.CacheTTL == 0 {
		cfg.Conversation.CacheTTL = DefaultConversationCacheTTL
	}
	if cfg.Conversation.CacheMaxEntries == 0 {
		cfg.Conversation.CacheMaxEntries = DefaultConversationCacheSize
	}
	applySQLiteDefaults(&cfg.Conversation.SQLite, DefaultConversationSQLitePath)

	// Processing defaults
	if cfg.Tokens.CharsPerToken == 0 {
		cfg.Tokens.CharsPerToken = DefaultTokensCharsPerToken
	}
	if cfg.Costs.InputRatio == 0 {
		cfg.Costs.InputRatio = DefaultCostsInputRatio
	}
	if cfg.Costs.Pricing == nil {
		cfg.Costs.Pricing = make(map[string]PricingConfig)
	}
	if _, ok := cfg.Costs.Pricing["default"]; !ok {
		cfg.Costs.Pricing["default"] = PricingConfig{
			InputPer1K:  DefaultCostsPricing,
			OutputPer1K: DefaultCostsPricing,
		}
	}

	// Audit defaults
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	applySQLiteDefaults(&cfg.Audit.SQLite, DefaultAuditSQLitePath)
	if cfg.Audit.Recorder.BufferSize == 0 {
		cfg.Audit.Recorder.BufferSize = DefaultAuditBufferSize
	}
	if cfg.Audit.Recorder.WriteTimeout == 0 {
		cfg.Audit.Recorder.WriteTimeout = DefaultAuditWriteTimeout
	}
	if cfg.Audit.Retention.Days == 0 {
		cfg.Audit.Retention.Days = DefaultAuditRetentionDays
	}
	if cfg.Audit.Retention.PruneSchedule == "" {
		cfg.Audit.Retention.PruneSchedule = DefaultAuditPruneSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultPrometheusPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSamplingRate
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}

	if cfg.Secrets.EnvPrefix == "" {
		cfg.Secrets.EnvPrefix = DefaultSecretsEnvPrefix
	}
}

func applySQLiteDefaults(cfg *SQLiteConfig, path string) {
	if cfg.Path == "" {
		cfg.Path = path
	}
	if cfg.Driver == "" {
		cfg.Driver = DefaultSQLiteDriver
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultSQLiteBusyTimeout
	}
}
