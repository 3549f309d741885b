package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"mercator-hq/relay/pkg/config"
)

var refPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Resolver looks secrets up across providers in order.
type Resolver struct {
	providers []Provider
	logger    *slog.Logger
}

// NewResolver creates a resolver that consults providers in order.
func NewResolver(providers ...Provider) *Resolver {
	return &Resolver{
		providers: providers,
		logger:    slog.Default().With("component", "secrets"),
	}
}

// FromConfig builds the file provider (when a directory is configured)
// followed by the environment provider.
func FromConfig(cfg config.SecretsConfig) (*Resolver, error) {
	var ps []Provider
	if cfg.Dir != "" {
		fp, err := NewFileProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		ps = append(ps, fp)
	}
	ps = append(ps, NewEnvProvider(cfg.EnvPrefix))
	return NewResolver(ps...), nil
}

// Lookup returns the first value found for name.
func (r *Resolver) Lookup(ctx context.Context, name string) (string, error) {
	for _, p := range r.providers {
		v, err := p.Lookup(ctx, name)
		switch {
		case err == nil:
			r.logger.Debug("secret resolved", "secret", redact(name), "provider", p.Name())
			return v, nil
		case errors.Is(err, ErrNotFound):
			continue
		default:
			return "", fmt.Errorf("%s provider: %w", p.Name(), err)
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// Resolve replaces every ${secret:name} in s. References that cannot be
// resolved are left in place and reported together.
func (r *Resolver) Resolve(ctx context.Context, s string) (string, error) {
	var errs []error
	out := refPattern.ReplaceAllStringFunc(s, func(ref string) string {
		name := refPattern.FindStringSubmatch(ref)[1]
		v, err := r.Lookup(ctx, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to resolve secret %q: %w", name, err))
			return ref
		}
		return v
	})
	return out, errors.Join(errs...)
}

// ResolveConfig resolves references in provider API keys and base URLs and
// in the Postgres DSN, in place.
func (r *Resolver) ResolveConfig(ctx context.Context, cfg *config.Config) error {
	var errs []error
	resolve := func(field string, v *string) {
		if !refPattern.MatchString(*v) {
			return
		}
		out, err := r.Resolve(ctx, *v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*v = out
	}

	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		resolve("providers."+p.Name+".api_key", &p.APIKey)
		resolve("providers."+p.Name+".base_url", &p.BaseURL)
	}
	resolve("conversation.postgres.dsn", &cfg.Conversation.Postgres.DSN)

	return errors.Join(errs...)
}

// redact keeps secret names out of logs beyond a recognizable hint.
func redact(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
