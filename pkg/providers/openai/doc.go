// Package openai implements the OpenAI Chat Completions adapter on top of the
// official openai-go SDK.
//
// The SDK shares the pooled HTTP client of the embedded providers.HTTPProvider
// and runs with SDK-level retries disabled, so a failing call surfaces after a
// single attempt and the dispatcher can fall back to the next provider.
// Liveness is probed by listing models.
//
//	p, err := openai.NewProvider(providers.ProviderConfig{
//	    Name:   "primary",
//	    Kind:   providers.KindOpenAI,
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4o-mini",
//	})
package openai
