// Package testutil provides scripted providers and wire-format mock servers
// shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"mercator-hq/relay/pkg/providers"
)

// MockProvider is a scripted providers.Provider.
type MockProvider struct {
	name string

	mu       sync.Mutex
	reply    string
	err      error
	healthy  bool
	block    bool
	requests []*providers.GenerateRequest

	calls       atomic.Int32
	healthCalls atomic.Int32
}

// NewMockProvider creates a healthy provider that answers with "reply from <name>".
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:    name,
		reply:   fmt.Sprintf("reply from %s", name),
		healthy: true,
	}
}

// SetReply sets the text returned by Generate.
func (m *MockProvider) SetReply(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reply = text
}

// SetError makes Generate fail with err. Nil restores success.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Fail makes Generate fail with a 503 ProviderError naming this provider.
func (m *MockProvider) Fail() {
	m.SetError(&providers.ProviderError{Provider: m.name, StatusCode: 503, Message: "scripted failure"})
}

// SetHealthy sets the result of HealthCheck.
func (m *MockProvider) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Block makes Generate wait until its context is done.
func (m *MockProvider) Block() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block = true
}

// Calls returns how many times Generate was invoked.
func (m *MockProvider) Calls() int {
	return int(m.calls.Load())
}

// HealthCalls returns how many times HealthCheck was invoked.
func (m *MockProvider) HealthCalls() int {
	return int(m.healthCalls.Load())
}

// LastRequest returns the most recent Generate request, or nil.
func (m *MockProvider) LastRequest() *providers.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

// Generate returns the scripted reply or error.
func (m *MockProvider) Generate(ctx context.Context, req *providers.GenerateRequest) (*providers.GenerateResponse, error) {
	m.calls.Add(1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	reply, err, block := m.reply, m.err, m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, &providers.TimeoutError{Provider: m.name, Cause: ctx.Err()}
	}
	if err != nil {
		return nil, err
	}
	return &providers.GenerateResponse{
		Text:         reply,
		Model:        "mock-model",
		FinishReason: providers.FinishReasonStop,
	}, nil
}

// HealthCheck reports the scripted health.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.healthCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.healthy {
		return errors.New("provider " + m.name + " is unhealthy")
	}
	return nil
}

// GetName returns the provider name.
func (m *MockProvider) GetName() string {
	return m.name
}

// GetKind reports the generic kind.
func (m *MockProvider) GetKind() providers.Kind {
	return providers.KindGeneric
}

// GetConfig returns a minimal configuration.
func (m *MockProvider) GetConfig() providers.ProviderConfig {
	return providers.ProviderConfig{Name: m.name, Kind: providers.KindGeneric, Model: "mock-model"}
}

// Close is a no-op.
func (m *MockProvider) Close() error {
	return nil
}
