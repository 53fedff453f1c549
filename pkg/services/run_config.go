package services

import (
	"github.com/medquiz-ai/medquiz-engine/pkg/llm"
)

// RunConfig captures everything a pipeline or refinement run needs from the
// model registry and configuration at run start. It is resolved once per run
// and threaded explicitly so a registry change or a different model selection
// can never affect an in-flight run.
type RunConfig struct {
	// Client is the resolved generator backend for this run.
	Client llm.Client
	// ModelID is the registry identifier the run resolved to.
	ModelID string
	// Temperature is the sampling temperature for generation calls.
	Temperature float64
	// MaxTokens caps completion length per call.
	MaxTokens int
	// MaxRefineIterations caps refine steps in the critique/refine loop.
	MaxRefineIterations int
}
