package models

// ============================================================================
// Generator Providers
// ============================================================================

// Provider identifies which text-generation backend a model config targets.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
)

// ValidProviders contains all supported provider values.
var ValidProviders = []Provider{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGemini,
}

// IsValidProvider checks if the given provider is supported.
func IsValidProvider(p Provider) bool {
	for _, v := range ValidProviders {
		if v == p {
			return true
		}
	}
	return false
}

// ============================================================================
// Model Configuration
// ============================================================================

// ModelConfig describes one named generator configuration. Configs are
// declared in config.yaml and registered at startup; the registry resolves
// unknown identifiers to the default entry.
type ModelConfig struct {
	Identifier  string   `json:"identifier" yaml:"identifier"`
	Label       string   `json:"label" yaml:"label"`
	Provider    Provider `json:"provider" yaml:"provider"`
	Model       string   `json:"model" yaml:"model"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Default     bool     `json:"default,omitempty" yaml:"default"`
}
