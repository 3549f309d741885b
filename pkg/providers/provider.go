package providers

import "context"

// Provider is the contract every adapter implements.
//
// Implementations must respect context cancellation and return as soon as the
// context is done. A Provider is safe for concurrent use.
type Provider interface {
	// Generate sends one conversational turn to the provider. The request
	// history is chronological; the adapter maps it to its wire format.
	// A response with empty text is reported as a ParseError.
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// HealthCheck performs a lightweight liveness call (a model listing) and
	// returns nil if the provider answered successfully.
	HealthCheck(ctx context.Context) error

	// GetName returns the configured provider name.
	GetName() string

	// GetKind returns the adapter variant.
	GetKind() Kind

	// GetConfig returns the provider's configuration.
	GetConfig() ProviderConfig

	// Close releases pooled connections. The provider must not be used afterwards.
	Close() error
}
