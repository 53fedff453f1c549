package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/llm"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/pubmed"
)

// Artifact keys, one per pipeline stage, in execution order.
const (
	ArtifactSourcePayload   = "sourcePayload"
	ArtifactExtractedFacts  = "extractedFacts"
	ArtifactFactsForReview  = "factsForReview"
	ArtifactCandidateDraft  = "candidateDraft"
	ArtifactVisualPayload   = "visualPayload"
	ArtifactFallbackPayload = "fallbackPayload"
)

// PipelineRequest is the caller's input to a pipeline run.
type PipelineRequest struct {
	// SourceRef is an existing external id or a new PubMed id ("PMID:123"
	// or bare digits). Empty when Text carries the input.
	SourceRef string `json:"source_ref,omitempty"`
	// Text is free text to register as an ad-hoc document source.
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
	// ModelID selects a registry model; empty means the default.
	ModelID string `json:"model_id,omitempty"`
}

// Artifacts accumulates stage outputs under their artifact keys. A stage
// reads only artifacts recorded before it and writes exactly one. A failed
// stage is recorded as an explicit nil artifact.
type Artifacts struct {
	Request PipelineRequest

	order  []string
	values map[string]any
}

// NewArtifacts creates an artifact map for one run.
func NewArtifacts(req PipelineRequest) *Artifacts {
	return &Artifacts{
		Request: req,
		values:  make(map[string]any),
	}
}

// Set records a stage output. Recording the same key twice is a programming
// error and panics.
func (a *Artifacts) Set(name string, value any) {
	if _, exists := a.values[name]; exists {
		panic(fmt.Sprintf("artifact %q recorded twice", name))
	}
	a.order = append(a.order, name)
	a.values[name] = value
}

// Get returns an artifact and whether its stage has run.
func (a *Artifacts) Get(name string) (any, bool) {
	v, ok := a.values[name]
	return v, ok
}

// Map returns the recorded artifacts keyed by stage artifact name.
func (a *Artifacts) Map() map[string]any {
	out := make(map[string]any, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Source returns the ingested source, or nil if ingest failed.
func (a *Artifacts) Source() *models.Source {
	if payload, ok := a.values[ArtifactSourcePayload].(*SourcePayload); ok && payload != nil {
		return payload.Source
	}
	return nil
}

// ExtractedFacts returns the extraction output; nil when the stage failed
// or found nothing.
func (a *Artifacts) ExtractedFacts() []ExtractedFact {
	facts, _ := a.values[ArtifactExtractedFacts].([]ExtractedFact)
	return facts
}

// FactsForReview returns the reconciled facts.
func (a *Artifacts) FactsForReview() []*models.Fact {
	facts, _ := a.values[ArtifactFactsForReview].([]*models.Fact)
	return facts
}

// CandidateDraft returns the generated candidate, or nil.
func (a *Artifacts) CandidateDraft() *models.Candidate {
	candidate, _ := a.values[ArtifactCandidateDraft].(*models.Candidate)
	return candidate
}

// SourcePayload is the ingest stage's artifact.
type SourcePayload struct {
	Source *models.Source `json:"source"`
}

// FallbackPayload is the zero-fact stage's artifact: one synthesized fact
// and one candidate testing it.
type FallbackPayload struct {
	Fact      *models.Fact      `json:"fact"`
	Candidate *models.Candidate `json:"candidate"`
}

// Stage is one pipeline step. Run reads earlier artifacts and returns the
// value recorded under the stage's artifact key.
type Stage interface {
	Name() string
	Run(ctx context.Context, artifacts *Artifacts, run RunConfig) (any, error)
}

// Stage names, in execution order.
const (
	StageIngest            = "ingest"
	StageExtractFacts      = "extractFacts"
	StageReconcileKB       = "reconcileKB"
	StageGenerateCandidate = "generateCandidate"
	StageRefineVisual      = "refineVisual"
	StageZeroFactFallback  = "zeroFactFallback"
)

// stageArtifacts maps each stage to the artifact key it writes.
var stageArtifacts = map[string]string{
	StageIngest:            ArtifactSourcePayload,
	StageExtractFacts:      ArtifactExtractedFacts,
	StageReconcileKB:       ArtifactFactsForReview,
	StageGenerateCandidate: ArtifactCandidateDraft,
	StageRefineVisual:      ArtifactVisualPayload,
	StageZeroFactFallback:  ArtifactFallbackPayload,
}

func artifactKeyFor(stage Stage) string {
	if key, ok := stageArtifacts[stage.Name()]; ok {
		return key
	}
	return stage.Name()
}

// PipelineResult is the outcome of a pipeline run: every artifact produced
// plus a warning per absorbed stage failure.
type PipelineResult struct {
	ModelID   string         `json:"model_id"`
	Artifacts map[string]any `json:"artifacts"`
	Warnings  []string       `json:"warnings,omitempty"`
}

// PipelineService runs the staged question pipeline.
type PipelineService interface {
	// Run executes the stage sequence. Stage failures are absorbed as
	// warnings; only unusable caller input errors.
	Run(ctx context.Context, req PipelineRequest) (*PipelineResult, error)
}

// LiteratureFetcher pulls one PubMed record for ingestion.
type LiteratureFetcher interface {
	FetchOne(ctx context.Context, id string) (*pubmed.Article, error)
}

// PipelineServiceDeps holds dependencies for the orchestrator.
type PipelineServiceDeps struct {
	Registry *llm.Registry
	Stages   []Stage
	// Sampling defaults and the refine ceiling captured into each RunConfig.
	Temperature         float64
	MaxTokens           int
	MaxRefineIterations int
	Logger              *zap.Logger
}

type pipelineService struct {
	registry            *llm.Registry
	stages              []Stage
	temperature         float64
	maxTokens           int
	maxRefineIterations int
	logger              *zap.Logger
}

// NewPipelineService creates the orchestrator over an ordered stage list.
func NewPipelineService(deps PipelineServiceDeps) PipelineService {
	return &pipelineService{
		registry:            deps.Registry,
		stages:              deps.Stages,
		temperature:         deps.Temperature,
		maxTokens:           deps.MaxTokens,
		maxRefineIterations: deps.MaxRefineIterations,
		logger:              deps.Logger.Named("pipeline"),
	}
}

var _ PipelineService = (*pipelineService)(nil)

func (s *pipelineService) Run(ctx context.Context, req PipelineRequest) (*PipelineResult, error) {
	if strings.TrimSpace(req.SourceRef) == "" && strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("either source_ref or text is required")
	}

	client, err := s.registry.ClientFor(ctx, req.ModelID)
	if err != nil {
		return nil, fmt.Errorf("resolve generation model: %w", err)
	}
	cfg := s.registry.Resolve(req.ModelID)

	run := RunConfig{
		Client:              client,
		ModelID:             cfg.Identifier,
		Temperature:         s.temperature,
		MaxTokens:           s.maxTokens,
		MaxRefineIterations: s.maxRefineIterations,
	}

	artifacts := NewArtifacts(req)
	var warnings []string

	s.logger.Info("pipeline run started",
		zap.String("model", run.ModelID),
		zap.String("source_ref", req.SourceRef))

	for _, stage := range s.stages {
		value, err := stage.Run(ctx, artifacts, run)
		if err != nil {
			// Absorb: the run completes and returns whatever it produced.
			s.logger.Warn("pipeline stage failed",
				zap.String("stage", stage.Name()),
				zap.Error(err))
			warnings = append(warnings, fmt.Sprintf("%s: %v", stage.Name(), err))
			artifacts.Set(artifactKeyFor(stage), nil)
			continue
		}
		artifacts.Set(artifactKeyFor(stage), value)
	}

	s.logger.Info("pipeline run completed",
		zap.String("model", run.ModelID),
		zap.Int("warnings", len(warnings)))

	return &PipelineResult{
		ModelID:   run.ModelID,
		Artifacts: artifacts.Map(),
		Warnings:  warnings,
	}, nil
}

// pmidPattern accepts "PMID:12345" or bare digits as a PubMed reference.
var pmidPattern = regexp.MustCompile(`^(?:PMID:)?\d+$`)

// IsPubMedRef reports whether a source reference names a PubMed record.
func IsPubMedRef(ref string) bool {
	return pmidPattern.MatchString(strings.TrimSpace(ref))
}
