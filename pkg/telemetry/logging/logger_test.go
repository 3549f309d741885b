package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/config"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var m map[string]any
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("failed to decode log line %q: %v", line, err)
	}
	return m
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json info", config: Config{Level: "info", Format: "json"}},
		{name: "text debug", config: Config{Level: "debug", Format: "text"}},
		{name: "defaults", config: Config{}},
		{name: "upper case", config: Config{Level: "WARN", Format: "JSON"}},
		{name: "invalid level", config: Config{Level: "loud"}, wantErr: true},
		{name: "invalid format", config: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.config.Writer = &bytes.Buffer{}
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info record written at warn level: %s", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn record missing: %s", buf.String())
	}
}

func TestNew_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Writer: &buf})

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithSessionID(ctx, "s1")
	ctx = WithProvider(ctx, "primary")
	logger.InfoContext(ctx, "dispatch completed", "latency_ms", 12)

	m := decodeLine(t, &buf)
	for key, want := range map[string]string{"request_id": "req-1", "session_id": "s1", "provider": "primary"} {
		if m[key] != want {
			t.Errorf("%s = %v, want %q", key, m[key], want)
		}
	}
}

func TestNew_ExplicitAttrWinsOverContext(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Writer: &buf})

	ctx := WithProvider(context.Background(), "primary")
	logger.InfoContext(ctx, "attempt failed", "provider", "backup")

	m := decodeLine(t, &buf)
	if m["provider"] != "backup" {
		t.Errorf("provider = %v, want backup", m["provider"])
	}
}

func TestNew_RedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Writer: &buf})

	logger.With("api_key", "sk-live-abcdef123456").Info("provider configured",
		"error", "upstream said: invalid key sk-abcdefghijklmnop",
		"dsn", "postgres://relay:hunter2@db/relay",
	)

	out := buf.String()
	for _, leaked := range []string{"sk-live-abcdef123456", "sk-abcdefghijklmnop", "hunter2"} {
		if strings.Contains(out, leaked) {
			t.Errorf("log output leaked %q: %s", leaked, out)
		}
	}
}

func TestNew_DisableRedaction(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Config{Writer: &buf, DisableRedaction: true})
	logger.Info("raw", "token", "abc123456")
	if !strings.Contains(buf.String(), "abc123456") {
		t.Errorf("value redacted with redaction disabled: %s", buf.String())
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(&config.LoggingConfig{Level: "debug", Format: "text", AddSource: true})
	if cfg.Level != "debug" || cfg.Format != "text" || !cfg.AddSource {
		t.Errorf("FromConfig() = %+v", cfg)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}
