package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/dispatch"
)

type testTable struct {
	Items []map[string]string `json:"items"`
}

func (t testTable) Header() []string { return []string{"NAME", "STATE"} }

func (t testTable) Rows() [][]string {
	rows := make([][]string, 0, len(t.Items))
	for _, it := range t.Items {
		rows = append(rows, []string{it["name"], it["state"]})
	}
	return rows
}

var sampleTable = testTable{Items: []map[string]string{
	{"name": "openai-primary", "state": "CLOSED"},
	{"name": "local", "state": "OPEN"},
}}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", FormatText, false},
		{"JSON", FormatJSON, false},
		{"csv", FormatCSV, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestTextFormatter_Table(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatText).FormatTo(&buf, sampleTable); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "NAME") || !strings.Contains(lines[2], "OPEN") {
		t.Errorf("output = %q", buf.String())
	}
	// Columns are aligned.
	if strings.Index(lines[1], "CLOSED") != strings.Index(lines[0], "STATE") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestTextFormatter_Plain(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatText).FormatTo(&buf, "hello"); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}
	if buf.String() != "hello\n" {
		t.Errorf("output = %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatJSON).FormatTo(&buf, sampleTable); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}
	var decoded testTable
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded.Items) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestCSVFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewFormatter(FormatCSV).FormatTo(&buf, sampleTable); err != nil {
		t.Fatalf("FormatTo: %v", err)
	}
	want := "NAME,STATE\nopenai-primary,CLOSED\nlocal,OPEN\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}

	if err := NewFormatter(FormatCSV).FormatTo(&buf, "plain"); err == nil {
		t.Error("expected error for non-table CSV output")
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressReporter(&buf, "probed")
	p.Start(2)
	p.Increment()
	p.Increment()
	p.Increment()
	p.Finish()

	out := buf.String()
	if !strings.Contains(out, "1/2 probed") || !strings.HasSuffix(out, "2/2 probed\n") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "3/2") {
		t.Error("progress overshot total")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", NewConfigError("server", "bad"), ExitConfig},
		{"validation", fmt.Errorf("load: %w", config.ValidationError{}), ExitConfig},
		{"rate limited", NewCommandError("chat", &dispatch.RateLimitError{}), ExitRateLimited},
		{"exhausted", &dispatch.ExhaustedError{}, ExitExhausted},
		{"canceled", fmt.Errorf("%w: %w", dispatch.ErrCanceled, context.Canceled), ExitInterrupted},
		{"other", errors.New("boom"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCommandError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewCommandError("serve", inner)
	if !errors.Is(err, inner) {
		t.Error("CommandError should unwrap to the inner error")
	}
	if !strings.Contains(err.Error(), "serve") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, stop := SetupSignalHandler()
	select {
	case <-ctx.Done():
		t.Fatal("context canceled before any signal")
	default:
	}
	stop()
	if ctx.Err() == nil {
		t.Error("stop should cancel the context")
	}
}
