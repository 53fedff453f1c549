package llm

import (
	"context"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

// MockClient is a configurable mock for testing generation flows.
// Set the function fields to control behavior in tests.
type MockClient struct {
	// GenerateFunc is called when Generate is invoked.
	// If nil, returns an empty result and nil error.
	GenerateFunc func(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// Model is returned by ModelName. Defaults to "mock-model".
	Model string

	// ProviderKind is returned by Provider. Defaults to openai.
	ProviderKind models.Provider

	// Call tracking for verification
	GenerateCalls int
	// Requests records every request passed to Generate, in order.
	Requests []GenerateRequest
}

// NewMockClient creates a new mock with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Model:        "mock-model",
		ProviderKind: models.ProviderOpenAI,
	}
}

// Generate implements Client.
func (m *MockClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	m.GenerateCalls++
	m.Requests = append(m.Requests, req)
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, req)
	}
	return &GenerateResult{Model: m.Model}, nil
}

// Provider implements Client.
func (m *MockClient) Provider() models.Provider {
	if m.ProviderKind == "" {
		return models.ProviderOpenAI
	}
	return m.ProviderKind
}

// ModelName implements Client.
func (m *MockClient) ModelName() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Reset clears call tracking.
func (m *MockClient) Reset() {
	m.GenerateCalls = 0
	m.Requests = nil
}

// Ensure MockClient implements Client at compile time.
var _ Client = (*MockClient)(nil)
