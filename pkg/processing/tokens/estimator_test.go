package tokens

import (
	"sync"
	"testing"

	"mercator-hq/relay/pkg/config"
	"mercator-hq/relay/pkg/providers"
)

func TestEstimator_EstimateText(t *testing.T) {
	estimator := NewEstimator(&config.TokensConfig{CharsPerToken: 4.0})

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{name: "empty text", text: "", expected: 0},
		{name: "single char rounds up to one", text: "a", expected: 1},
		{name: "exact multiple", text: "abcdefgh", expected: 2},
		{name: "ceil partial token", text: "hello", expected: 2},
		{name: "how are you", text: "How are you?", expected: 3},
		{name: "multibyte counts runes", text: "héllo wörld", expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := estimator.EstimateText(tt.text); got != tt.expected {
				t.Errorf("EstimateText(%q) = %d, want %d", tt.text, got, tt.expected)
			}
		})
	}
}

func TestEstimator_DefaultRatio(t *testing.T) {
	for _, cfg := range []*config.TokensConfig{nil, {}, {CharsPerToken: -2}} {
		e := NewEstimator(cfg)
		if e.CharsPerToken() != config.DefaultTokensCharsPerToken {
			t.Errorf("CharsPerToken = %v, want default", e.CharsPerToken())
		}
	}
}

func TestEstimator_Update(t *testing.T) {
	e := NewEstimator(nil)
	if got := e.EstimateText("abcdefgh"); got != 2 {
		t.Fatalf("before update = %d, want 2", got)
	}
	e.Update(&config.TokensConfig{CharsPerToken: 2})
	if got := e.EstimateText("abcdefgh"); got != 4 {
		t.Errorf("after update = %d, want 4", got)
	}
}

func TestEstimator_EstimateRequest(t *testing.T) {
	e := NewEstimator(nil)
	req := &providers.GenerateRequest{
		SystemPrompt: "be nice", // 2
		History: []providers.Message{
			{Role: providers.RoleUser, Content: "hello"},     // 2
			{Role: providers.RoleAssistant, Content: "hi!"}, // 1
		},
		UserText: "how are you", // 3
	}
	if got := e.EstimateRequest(req); got != 8 {
		t.Errorf("EstimateRequest = %d, want 8", got)
	}
	if got := e.EstimateRequest(nil); got != 0 {
		t.Errorf("EstimateRequest(nil) = %d, want 0", got)
	}
}

func TestEstimator_UsagePrefersProvider(t *testing.T) {
	e := NewEstimator(nil)
	req := &providers.GenerateRequest{UserText: "hello"}

	reported := &providers.GenerateResponse{
		Text:  "hi there",
		Usage: providers.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
	}
	if got := e.Usage(req, reported); got.TotalTokens != 30 {
		t.Errorf("reported usage total = %d, want 30", got.TotalTokens)
	}

	partial := &providers.GenerateResponse{
		Text:  "hi there",
		Usage: providers.TokenUsage{PromptTokens: 10, CompletionTokens: 5},
	}
	if got := e.Usage(req, partial); got.TotalTokens != 15 {
		t.Errorf("partial usage total = %d, want 15", got.TotalTokens)
	}

	missing := &providers.GenerateResponse{Text: "hi there"} // 2
	got := e.Usage(req, missing)
	if got.PromptTokens != 2 || got.CompletionTokens != 2 || got.TotalTokens != 4 {
		t.Errorf("estimated usage = %+v, want 2/2/4", got)
	}
}

func TestEstimator_Concurrent(t *testing.T) {
	e := NewEstimator(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			e.EstimateText("concurrent estimation")
		}()
		go func(i int) {
			defer wg.Done()
			e.Update(&config.TokensConfig{CharsPerToken: float64(i%4 + 1)})
		}(i)
	}
	wg.Wait()
}
