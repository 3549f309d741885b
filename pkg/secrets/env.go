package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables.
//
// The secret "openai-api-key" with prefix "RELAY_SECRET_" is read from
// RELAY_SECRET_OPENAI_API_KEY.
type EnvProvider struct {
	prefix string
	getenv func(string) string
}

// NewEnvProvider creates an environment provider with the given variable prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{prefix: prefix, getenv: os.Getenv}
}

// Name returns "env".
func (p *EnvProvider) Name() string { return "env" }

// Lookup reads the variable for name. An empty variable counts as missing.
func (p *EnvProvider) Lookup(ctx context.Context, name string) (string, error) {
	v := p.getenv(p.variable(name))
	if v == "" {
		return "", fmt.Errorf("%w: %s not set", ErrNotFound, p.variable(name))
	}
	return v, nil
}

// variable converts a secret name into its environment variable name.
func (p *EnvProvider) variable(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return p.prefix + strings.ToUpper(r.Replace(name))
}
