package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

// Config holds all configuration for medquiz-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Model provider configuration (API keys, sampling defaults)
	LLM LLMConfig `yaml:"llm"`

	// Model catalog. The registry serves these to clients and resolves
	// generation requests against them.
	Models []models.ModelConfig `yaml:"models"`

	// PubMed E-utilities client configuration
	PubMed PubMedConfig `yaml:"pubmed"`

	// Visual generation configuration
	Images ImagesConfig `yaml:"images"`

	// Question pipeline tuning
	Pipeline PipelineConfig `yaml:"pipeline"`

	// VocabularyPath points at the relation vocabulary YAML file.
	VocabularyPath string `yaml:"vocabulary_path" env:"VOCABULARY_PATH" env-default:"relations.yaml"`

	// MigrationsPath points at the directory holding schema migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"quiz"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"quiz_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// LLMConfig holds model provider credentials and sampling defaults.
// All keys are secrets and must come from environment variables.
type LLMConfig struct {
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	GeminiAPIKey    string `yaml:"-" env:"GEMINI_API_KEY"`

	// OpenAIBaseURL overrides the OpenAI endpoint, e.g. for a compatible
	// proxy or a self-hosted gateway. Empty means the public API.
	OpenAIBaseURL string `yaml:"openai_base_url" env:"OPENAI_BASE_URL" env-default:""`

	// Temperature is the sampling temperature used for generation calls.
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.7"`

	// MaxTokens caps completion length per request.
	MaxTokens int `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"4096"`
}

// KeyFor returns the API key configured for a provider, or empty string.
func (c *LLMConfig) KeyFor(provider models.Provider) string {
	switch provider {
	case models.ProviderOpenAI:
		return c.OpenAIAPIKey
	case models.ProviderAnthropic:
		return c.AnthropicAPIKey
	case models.ProviderGemini:
		return c.GeminiAPIKey
	}
	return ""
}

// PubMedConfig holds NCBI E-utilities client configuration.
type PubMedConfig struct {
	BaseURL string `yaml:"base_url" env:"PUBMED_BASE_URL" env-default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	// APIKey raises the NCBI rate limit from 3 to 10 requests per second.
	APIKey         string `yaml:"-" env:"PUBMED_API_KEY"` // Secret - not in YAML
	MaxResults     int    `yaml:"max_results" env:"PUBMED_MAX_RESULTS" env-default:"5"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"PUBMED_TIMEOUT_SECONDS" env-default:"30"`
}

// ImagesConfig holds visual generation settings.
type ImagesConfig struct {
	Enabled bool `yaml:"enabled" env:"IMAGES_ENABLED" env-default:"true"`
	// Provider selects the image backend: "openai" or "gemini".
	Provider string `yaml:"provider" env:"IMAGES_PROVIDER" env-default:"openai"`
	// Model is the image model identifier for the selected provider.
	Model string `yaml:"model" env:"IMAGES_MODEL" env-default:"gpt-image-1"`
	// OutputDir is where rendered images are written.
	OutputDir     string `yaml:"output_dir" env:"IMAGES_OUTPUT_DIR" env-default:"generated_images"`
	DefaultWidth  int    `yaml:"default_width" env:"IMAGES_DEFAULT_WIDTH" env-default:"1024"`
	DefaultHeight int    `yaml:"default_height" env:"IMAGES_DEFAULT_HEIGHT" env-default:"1024"`
}

// PipelineConfig holds question pipeline tuning knobs.
type PipelineConfig struct {
	// MaxRefineIterations caps how many critique-and-refine rounds a
	// candidate goes through before the loop settles for the last good draft.
	MaxRefineIterations int `yaml:"max_refine_iterations" env:"PIPELINE_MAX_REFINE_ITERATIONS" env-default:"2"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (PGPASSWORD, provider API
// keys) must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	// Load config from YAML file with environment variable overrides
	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	// Validate and normalize loaded fields
	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Validate TLS configuration
	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// DefaultModels is the model catalog used when config.yaml lists none.
func DefaultModels() []models.ModelConfig {
	return []models.ModelConfig{
		{
			Identifier:  "gpt-5-mini",
			Label:       "GPT-5 Mini",
			Provider:    models.ProviderOpenAI,
			Model:       "gpt-5-mini",
			Description: "Fast OpenAI model for extraction and generation",
			Default:     true,
		},
		{
			Identifier:  "claude-sonnet-4-5",
			Label:       "Claude Sonnet 4.5",
			Provider:    models.ProviderAnthropic,
			Model:       "claude-sonnet-4-5",
			Description: "Anthropic model suited to critique and refinement",
		},
		{
			Identifier:  "gemini-2.5-flash",
			Label:       "Gemini 2.5 Flash",
			Provider:    models.ProviderGemini,
			Model:       "gemini-2.5-flash",
			Description: "Google model with low-latency generation",
		},
	}
}

// normalize validates loaded fields and applies fallbacks that cleanenv
// cannot express through tags.
func (c *Config) normalize() error {
	if len(c.Models) == 0 {
		c.Models = DefaultModels()
	}

	seen := make(map[string]bool, len(c.Models))
	defaults := 0
	for i := range c.Models {
		m := &c.Models[i]
		if m.Identifier == "" {
			return fmt.Errorf("model at index %d has no identifier", i)
		}
		if seen[m.Identifier] {
			return fmt.Errorf("duplicate model identifier %q", m.Identifier)
		}
		seen[m.Identifier] = true
		if !models.IsValidProvider(m.Provider) {
			return fmt.Errorf("model %q has unknown provider %q", m.Identifier, m.Provider)
		}
		if m.Model == "" {
			m.Model = m.Identifier
		}
		if m.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("only one model may be marked default, found %d", defaults)
	}
	if defaults == 0 {
		c.Models[0].Default = true
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature %.2f outside [0, 2]", c.LLM.Temperature)
	}
	if c.Pipeline.MaxRefineIterations < 0 {
		return fmt.Errorf("max_refine_iterations must not be negative")
	}

	switch c.Images.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown image provider %q", c.Images.Provider)
	}

	// When containerized, localhost points at the container itself
	c.Database.Host = ResolveHostForDocker(c.Database.Host)

	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// DefaultModel returns the catalog entry marked as default.
func (c *Config) DefaultModel() models.ModelConfig {
	for _, m := range c.Models {
		if m.Default {
			return m
		}
	}
	return c.Models[0]
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
