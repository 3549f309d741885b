// Package providers implements the adapter layer between the dispatcher and
// external conversational-completion APIs.
//
// # Overview
//
// Every supported backend is one variant of a closed set of kinds (see
// [Kind]). Adapters translate the normalized [GenerateRequest] into the
// provider's wire format and normalize the reply into a [GenerateResponse].
// Resolution from configuration to a concrete adapter happens once, when the
// configuration is loaded, in the providerfactory package.
//
// # Architecture
//
//  1. Provider interface - the contract every adapter implements
//  2. HTTPProvider - shared HTTP client with connection pooling and error mapping
//  3. Adapters - openai (SDK based), anthropic (HTTP), generic (OpenAI-compatible)
//
// # Basic Usage
//
//	p, err := providerfactory.NewProvider(providers.ProviderConfig{
//	    Name:    "primary",
//	    Kind:    providers.KindOpenAI,
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	    Model:   "gpt-4o-mini",
//	    Timeout: 30 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	resp, err := p.Generate(ctx, &providers.GenerateRequest{
//	    SystemPrompt: "You are a helpful assistant.",
//	    History:      history,
//	    UserText:     "hello",
//	})
//
// # Errors
//
// Adapters return typed errors so the dispatcher can classify failures:
//
//   - AuthError: HTTP 401/403
//   - RateLimitError: HTTP 429, with Retry-After when provided
//   - TimeoutError: the per-attempt deadline elapsed
//   - ProviderError: any other non-2xx status or transport failure
//   - ParseError: malformed or empty response payload
//   - ValidationError: request rejected before it was sent
//
// All of them match [ErrProviderFailure] through errors.Is, except
// ValidationError and ConfigError.
//
// # Retries
//
// Adapters do not retry by default. Falling back to the next provider in
// priority order is the retry mechanism; MaxRetries can be raised per provider
// for transport-level retries against the same endpoint.
package providers
