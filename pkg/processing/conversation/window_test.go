package conversation

import (
	"fmt"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/conversation"
	"mercator-hq/relay/pkg/processing/tokens"
	"mercator-hq/relay/pkg/providers"
)

func history(n int) []conversation.Message {
	msgs := make([]conversation.Message, n)
	for i := range msgs {
		role := conversation.RoleUser
		provider := ""
		if i%2 == 1 {
			role = conversation.RoleAssistant
			provider = "openai"
		}
		msgs[i] = conversation.Message{Role: role, Content: fmt.Sprintf("m%d", i), Provider: provider}
	}
	return msgs
}

func contents(window []providers.Message) string {
	parts := make([]string, len(window))
	for i, m := range window {
		parts[i] = m.Content
	}
	return strings.Join(parts, ",")
}

func TestBuildWindow(t *testing.T) {
	estimator := tokens.NewEstimator(nil) // "mN" is 1 token

	tests := []struct {
		name        string
		history     []conversation.Message
		maxMessages int
		maxTokens   int
		want        string
	}{
		{name: "empty history", history: nil, maxMessages: 5, want: ""},
		{name: "fits entirely", history: history(3), maxMessages: 5, want: "m0,m1,m2"},
		{name: "message bound drops oldest", history: history(6), maxMessages: 4, want: "m2,m3,m4,m5"},
		{name: "token bound drops oldest", history: history(6), maxTokens: 3, want: "m3,m4,m5"},
		{name: "tighter bound wins", history: history(6), maxMessages: 4, maxTokens: 2, want: "m4,m5"},
		{name: "unbounded", history: history(4), want: "m0,m1,m2,m3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildWindow(tt.history, tt.maxMessages, tt.maxTokens, estimator)
			if c := contents(got); c != tt.want {
				t.Errorf("window = %q, want %q", c, tt.want)
			}
		})
	}
}

func TestBuildWindow_Roles(t *testing.T) {
	got := BuildWindow(history(2), 0, 0, nil)
	if got[0].Role != providers.RoleUser || got[1].Role != providers.RoleAssistant {
		t.Errorf("roles = %s,%s", got[0].Role, got[1].Role)
	}
}

func TestBuildWindow_SkipsPlaceholders(t *testing.T) {
	h := []conversation.Message{
		{Role: conversation.RoleUser, Content: "hello"},
		{Role: conversation.RoleAssistant, Content: "Sorry, unavailable"}, // no provider
		{Role: conversation.RoleUser, Content: "again"},
		{Role: conversation.RoleAssistant, Content: "hi", Provider: "anthropic"},
	}
	got := BuildWindow(h, 10, 0, nil)
	if c := contents(got); c != "hello,again,hi" {
		t.Errorf("window = %q", c)
	}
}

func TestBuildWindow_OversizedNewestMessage(t *testing.T) {
	h := []conversation.Message{
		{Role: conversation.RoleUser, Content: "short"},
		{Role: conversation.RoleAssistant, Content: strings.Repeat("x", 400), Provider: "openai"},
	}
	got := BuildWindow(h, 10, 50, tokens.NewEstimator(nil))
	if len(got) != 0 {
		t.Errorf("expected empty window when newest message exceeds budget, got %d", len(got))
	}
}
