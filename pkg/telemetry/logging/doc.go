// Package logging builds the process slog.Logger.
//
// # Overview
//
// New returns a *slog.Logger whose handler:
//   - writes JSON or text at the configured level
//   - appends request_id, session_id, provider and model from the context
//   - redacts secrets (API keys, bearer tokens, values under sensitive keys)
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	slog.SetDefault(logger)
//
//	ctx = logging.WithSessionID(ctx, "s1")
//	slog.InfoContext(ctx, "dispatch completed", "provider", "primary")
//	// {"level":"INFO","msg":"dispatch completed","provider":"primary","session_id":"s1"}
//
// Components derive their loggers with slog.Default().With("component", name).
// Message content is never logged, only its length.
package logging
