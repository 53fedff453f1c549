package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

// Credentials holds provider API keys and endpoint overrides used when the
// registry constructs backend clients.
type Credentials struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
}

// Registry resolves model identifiers to configurations and backend clients.
// It is populated once at startup and read-only afterwards; constructed
// clients are cached per identifier. Runs capture their resolved client up
// front, so re-resolving mid-run never changes an in-flight request.
type Registry struct {
	configs   map[string]models.ModelConfig
	order     []string
	defaultID string
	creds     Credentials
	logger    *zap.Logger

	mu      sync.Mutex
	clients map[string]Client
}

// NewRegistry builds a registry from the configured model catalog.
// The first config flagged default becomes the default; if none is flagged,
// the first registered config is.
func NewRegistry(catalog []models.ModelConfig, creds Credentials, logger *zap.Logger) (*Registry, error) {
	if len(catalog) == 0 {
		return nil, fmt.Errorf("model catalog is empty")
	}

	r := &Registry{
		configs: make(map[string]models.ModelConfig, len(catalog)),
		order:   make([]string, 0, len(catalog)),
		creds:   creds,
		logger:  logger.Named("registry"),
		clients: make(map[string]Client),
	}

	for _, cfg := range catalog {
		if cfg.Identifier == "" {
			return nil, fmt.Errorf("model config with empty identifier")
		}
		if _, exists := r.configs[cfg.Identifier]; exists {
			return nil, fmt.Errorf("duplicate model identifier %q", cfg.Identifier)
		}
		r.configs[cfg.Identifier] = cfg
		r.order = append(r.order, cfg.Identifier)
		if cfg.Default && r.defaultID == "" {
			r.defaultID = cfg.Identifier
		}
	}
	if r.defaultID == "" {
		r.defaultID = r.order[0]
	}

	return r, nil
}

// DefaultID returns the identifier of the default model configuration.
func (r *Registry) DefaultID() string {
	return r.defaultID
}

// List returns the registered model configurations in registration order.
func (r *Registry) List() []models.ModelConfig {
	configs := make([]models.ModelConfig, 0, len(r.order))
	for _, id := range r.order {
		configs = append(configs, r.configs[id])
	}
	return configs
}

// Resolve returns the configuration for an identifier, falling back to the
// default on empty or unknown identifiers.
func (r *Registry) Resolve(identifier string) models.ModelConfig {
	if identifier != "" {
		if cfg, ok := r.configs[identifier]; ok {
			return cfg
		}
		r.logger.Warn("Unknown model identifier, using default",
			zap.String("identifier", identifier),
			zap.String("default", r.defaultID))
	}
	return r.configs[r.defaultID]
}

// ClientFor resolves an identifier and returns a client for its backend.
// Construction failure falls back to the default model's client; failure of
// the default itself propagates to the caller.
func (r *Registry) ClientFor(ctx context.Context, identifier string) (Client, error) {
	cfg := r.Resolve(identifier)

	client, err := r.clientFor(ctx, cfg)
	if err == nil {
		return client, nil
	}
	if cfg.Identifier == r.defaultID {
		return nil, fmt.Errorf("create client for default model %q: %w", cfg.Identifier, err)
	}

	r.logger.Warn("Client construction failed, falling back to default model",
		zap.String("identifier", cfg.Identifier),
		zap.String("default", r.defaultID),
		zap.Error(err))

	client, err = r.clientFor(ctx, r.configs[r.defaultID])
	if err != nil {
		return nil, fmt.Errorf("create client for default model %q: %w", r.defaultID, err)
	}
	return client, nil
}

func (r *Registry) clientFor(ctx context.Context, cfg models.ModelConfig) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[cfg.Identifier]; ok {
		return client, nil
	}

	client, err := r.buildClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r.clients[cfg.Identifier] = client
	return client, nil
}

func (r *Registry) buildClient(ctx context.Context, cfg models.ModelConfig) (Client, error) {
	switch cfg.Provider {
	case models.ProviderOpenAI:
		return NewOpenAIClient(&OpenAIConfig{
			APIKey:  r.creds.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: r.creds.OpenAIBaseURL,
		}, r.logger)
	case models.ProviderAnthropic:
		return NewAnthropicClient(&AnthropicConfig{
			APIKey: r.creds.AnthropicAPIKey,
			Model:  cfg.Model,
		}, r.logger)
	case models.ProviderGemini:
		return NewGeminiClient(ctx, &GeminiConfig{
			APIKey: r.creds.GeminiAPIKey,
			Model:  cfg.Model,
		}, r.logger)
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}
