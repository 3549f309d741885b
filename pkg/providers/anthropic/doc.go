// Package anthropic implements the Anthropic Messages API adapter.
//
// The system prompt travels in the top-level "system" field, max_tokens is
// always sent (the API requires it), and the history is normalized so that it
// starts with a user turn and strictly alternates roles. Liveness is probed
// with GET /v1/models.
//
//	p, err := anthropic.NewProvider(providers.ProviderConfig{
//	    Name:   "claude",
//	    Kind:   providers.KindAnthropic,
//	    APIKey: os.Getenv("ANTHROPIC_API_KEY"),
//	    Model:  "claude-3-5-haiku-latest",
//	})
package anthropic
