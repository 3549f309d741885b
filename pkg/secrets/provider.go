package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Provider that does not hold the secret.
var ErrNotFound = errors.New("secret not found")

// Provider looks up secrets in one backend.
type Provider interface {
	// Name identifies the backend in errors and logs ("env", "file").
	Name() string

	// Lookup returns the value of name. It returns an error matching
	// ErrNotFound when the backend does not hold the secret; any other error
	// stops resolution.
	Lookup(ctx context.Context, name string) (string, error)
}
