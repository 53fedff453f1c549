package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

// GeminiClient provides access to the Gemini API via the google.golang.org/genai SDK.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// GeminiConfig holds configuration for creating a Gemini client.
type GeminiConfig struct {
	APIKey string
	Model  string // Model name, e.g., "gemini-2.5-flash"
}

// NewGeminiClient creates a client for the Gemini generative API.
func NewGeminiClient(ctx context.Context, cfg *GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		logger: logger.Named("llm"),
	}, nil
}

// Generate produces a completion for the request.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	config := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSONMode {
		config.ResponseMIMEType = "application/json"
	}

	c.logger.Debug("LLM request",
		zap.String("provider", "gemini"),
		zap.String("model", c.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Float64("temperature", req.Temperature),
		zap.Bool("json_mode", req.JSONMode))

	start := time.Now()

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), config)
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, c.classify(err)
	}

	content := resp.Text()
	if content == "" {
		return nil, NewErrorWithContext(ErrorTypeMalformed, "no text content in response",
			false, nil, c.model, "", 0)
	}

	result := &GenerateResult{
		Content: content,
		Model:   c.model,
	}
	if resp.UsageMetadata != nil {
		result.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		result.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	c.logger.Info("LLM request completed",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("completion_tokens", result.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// Provider identifies the backend.
func (c *GeminiClient) Provider() models.Provider {
	return models.ProviderGemini
}

// ModelName returns the configured model identifier.
func (c *GeminiClient) ModelName() string {
	return c.model
}

func (c *GeminiClient) classify(err error) error {
	llmErr := ClassifyError(err)
	llmErr.Model = c.model
	return llmErr
}

var _ Client = (*GeminiClient)(nil)
