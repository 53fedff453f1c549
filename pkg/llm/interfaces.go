// Package llm provides text generation clients for the supported model
// providers, response parsing helpers, and the model registry.
package llm

import (
	"context"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

// GenerateRequest describes one completion call. The zero value of
// Temperature means "use the provider default"; callers normally pass the
// configured sampling temperature explicitly.
type GenerateRequest struct {
	// Prompt is the user-turn content.
	Prompt string
	// System is the system instruction, empty for none.
	System string
	// Temperature is the sampling temperature.
	Temperature float64
	// MaxTokens caps the completion length. Zero means the client default.
	MaxTokens int
	// JSONMode asks the provider to constrain output to a JSON document
	// where the API supports it. Prompts still carry the schema contract.
	JSONMode bool
}

// GenerateResult carries the completion text and usage counters.
type GenerateResult struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the interface every provider backend implements.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// Generate produces a single completion for the request.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// Provider identifies the backend.
	Provider() models.Provider

	// ModelName returns the configured model identifier.
	ModelName() string
}
