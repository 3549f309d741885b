// Package secrets resolves ${secret:name} references in configuration values.
//
// Provider API keys, base URLs and the Postgres DSN may name a secret instead
// of carrying it inline:
//
//	providers:
//	  - name: openai-primary
//	    kind: openai
//	    api_key: ${secret:openai-api-key}
//
// A Resolver consults its providers in order. FileProvider reads one file per
// secret from a directory (the layout Kubernetes uses for mounted secrets)
// and refuses files readable by group or others. EnvProvider reads
// RELAY_SECRET_OPENAI_API_KEY for the secret "openai-api-key".
//
//	r, err := secrets.FromConfig(cfg.Secrets)
//	if err != nil {
//		return err
//	}
//	if err := r.ResolveConfig(ctx, cfg); err != nil {
//		return err
//	}
package secrets
