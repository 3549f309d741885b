// Package config provides configuration management for Relay.
//
// This package handles loading, validating, and watching configuration from
// YAML files with environment variable overrides.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("relay.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("relay.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention RELAY_SECTION_FIELD.
// For example:
//
//   - RELAY_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - RELAY_CONVERSATION_POSTGRES_DSN overrides conversation.postgres.dsn
//   - RELAY_PROVIDER_OPENAI_PRIMARY_API_KEY sets the API key of the provider
//     named "openai-primary"
//
// Environment variables always take precedence over file-based configuration.
//
// # Hot Reload
//
// Watcher reloads the file on change and hands the new configuration to a
// callback. Pricing, token estimation, rate limits and dispatch settings
// are applied live; provider list changes need a restart.
//
// # Secrets
//
// String values may reference ${secret:name}. The references are resolved by
// package secrets after env overrides; this package only stores the
// secrets.dir and secrets.env_prefix settings.
//
// # Example Configuration
//
//	providers:
//	  - name: openai-primary
//	    kind: openai
//	    model: gpt-4o-mini
//	    priority: 1
//	  - name: claude
//	    kind: anthropic
//	    api_key: ${secret:anthropic-key}
//	    model: claude-3-5-haiku-latest
//	    priority: 2
//	  - name: local
//	    kind: generic
//	    base_url: http://localhost:11434/v1
//	    model: llama3
//	    priority: 3
//
//	rate_limit:
//	  limit: 20
//	  window: 60s
//
//	conversation:
//	  backend: sqlite
//	  sqlite:
//	    path: data/conversations.db
//
//	costs:
//	  pricing:
//	    openai-primary: {input_per_1k: 0.00015, output_per_1k: 0.0006}
//	    default: {input_per_1k: 0.001, output_per_1k: 0.002}
package config
