package routing

import (
	"errors"
	"fmt"
	"strings"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrProviderNotFound is returned when a provider name is not registered.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrNoProvidersConfigured is returned when the registry would be empty.
	ErrNoProvidersConfigured = errors.New("no providers configured")

	// ErrDuplicateProvider is returned when two providers share a name.
	ErrDuplicateProvider = errors.New("duplicate provider name")
)

// ProviderNotFoundError is returned when a named provider does not exist.
type ProviderNotFoundError struct {
	// ProviderName is the requested provider that was not found.
	ProviderName string

	// AvailableProviders contains the names of registered providers.
	AvailableProviders []string
}

// Error implements the error interface.
func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found (available providers: %s)",
		e.ProviderName, strings.Join(e.AvailableProviders, ", "))
}

// Is implements error matching for errors.Is().
func (e *ProviderNotFoundError) Is(target error) bool {
	return target == ErrProviderNotFound
}
