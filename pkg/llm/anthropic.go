package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

// defaultAnthropicMaxTokens caps completions when the caller does not set a
// limit; the Anthropic API requires an explicit max_tokens on every request.
const defaultAnthropicMaxTokens = 4096

// AnthropicClient provides access to the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// AnthropicConfig holds configuration for creating an Anthropic client.
type AnthropicConfig struct {
	APIKey string
	Model  string // Model name, e.g., "claude-sonnet-4-5"
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
func NewAnthropicClient(cfg *AnthropicConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey),
		model:  cfg.Model,
		logger: logger.Named("llm"),
	}, nil
}

// Generate produces a completion for the request. The Messages API has no
// JSON response mode; JSONMode is honored through the prompt contract and
// the caller's ExtractJSON pass.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	apiReq := anthropic.MessagesRequest{
		Model:     anthropic.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(req.Prompt),
		},
	}
	if req.System != "" {
		apiReq.System = req.System
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		apiReq.Temperature = &temp
	}

	c.logger.Debug("LLM request",
		zap.String("provider", "anthropic"),
		zap.String("model", c.model),
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Float64("temperature", req.Temperature))

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, apiReq)
	if err != nil {
		c.logger.Error("LLM request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, c.classify(err)
	}

	content := resp.GetFirstContentText()
	if content == "" {
		return nil, NewErrorWithContext(ErrorTypeMalformed, "no text content in response",
			false, nil, c.model, "", 0)
	}

	c.logger.Info("LLM request completed",
		zap.String("model", c.model),
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &GenerateResult{
		Content:          content,
		Model:            c.model,
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

// Provider identifies the backend.
func (c *AnthropicClient) Provider() models.Provider {
	return models.ProviderAnthropic
}

// ModelName returns the configured model identifier.
func (c *AnthropicClient) ModelName() string {
	return c.model
}

func (c *AnthropicClient) classify(err error) error {
	llmErr := ClassifyError(err)
	llmErr.Model = c.model
	return llmErr
}

var _ Client = (*AnthropicClient)(nil)
