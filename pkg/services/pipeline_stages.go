package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/repositories"
)

// StageDeps bundles the collaborators the stage set draws from.
type StageDeps struct {
	Ingestion  IngestionService
	Generator  GeneratorService
	KB         KBService
	Sources    repositories.SourceRepository
	Facts      repositories.FactRepository
	Candidates repositories.CandidateRepository
	Literature LiteratureFetcher
	Logger     *zap.Logger
}

// DefaultStages returns the fixed stage sequence of the question pipeline.
func DefaultStages(deps StageDeps) []Stage {
	logger := deps.Logger.Named("pipeline")
	return []Stage{
		&ingestStage{deps: deps, logger: logger},
		&extractFactsStage{deps: deps},
		&reconcileKBStage{deps: deps},
		&generateCandidateStage{deps: deps, logger: logger},
		&refineVisualStage{deps: deps},
		&zeroFactFallbackStage{deps: deps, logger: logger},
	}
}

// ingestStage resolves the caller's source reference into a source payload:
// an existing external id, a new PubMed id fetched and registered, or free
// text registered as an ad-hoc document.
type ingestStage struct {
	deps   StageDeps
	logger *zap.Logger
}

func (s *ingestStage) Name() string { return StageIngest }

func (s *ingestStage) Run(ctx context.Context, artifacts *Artifacts, run RunConfig) (any, error) {
	req := artifacts.Request

	if req.SourceRef != "" {
		existing, err := s.deps.Sources.GetByExternalID(ctx, req.SourceRef)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &SourcePayload{Source: existing}, nil
		}

		if !IsPubMedRef(req.SourceRef) {
			return nil, fmt.Errorf("unknown source reference %q", req.SourceRef)
		}
		article, err := s.deps.Literature.FetchOne(ctx, req.SourceRef)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", req.SourceRef, err)
		}
		source, err := s.deps.Ingestion.RegisterLiterature(ctx, article)
		if err != nil {
			return nil, err
		}
		return &SourcePayload{Source: source}, nil
	}

	source, err := s.deps.Ingestion.RegisterText(ctx, req.Title, req.Text)
	if err != nil {
		return nil, err
	}
	return &SourcePayload{Source: source}, nil
}

// extractFactsStage prompts the run's generator for assertions in the
// source text.
type extractFactsStage struct {
	deps StageDeps
}

func (s *extractFactsStage) Name() string { return StageExtractFacts }

func (s *extractFactsStage) Run(ctx context.Context, artifacts *Artifacts, run RunConfig) (any, error) {
	source := artifacts.Source()
	if source == nil {
		return nil, fmt.Errorf("no source to extract from")
	}
	return s.deps.Generator.ExtractFacts(ctx, run, source)
}

// reconcileKBStage validates and upserts the extracted assertions.
type reconcileKBStage struct {
	deps StageDeps
}

func (s *reconcileKBStage) Name() string { return StageReconcileKB }

func (s *reconcileKBStage) Run(ctx context.Context, artifacts *Artifacts, run RunConfig) (any, error) {
	source := artifacts.Source()
	if source == nil {
		return nil, fmt.Errorf("no source to reconcile against")
	}
	extracted := artifacts.ExtractedFacts()
	if len(extracted) == 0 {
		return []*models.Fact{}, nil
	}
	return s.deps.KB.ReconcileFacts(ctx, source.ID, extracted)
}

// generateCandidateStage picks the gating fact, gathers distractor material,
// and persists a pending candidate.
type generateCandidateStage struct {
	deps   StageDeps
	logger *zap.Logger
}

func (s *generateCandidateStage) Name() string { return StageGenerateCandidate }

func (s *generateCandidateStage) Run(ctx context.Context, artifacts *Artifacts, run RunConfig) (any, error) {
	source := artifacts.Source()
	if source == nil {
		return nil, fmt.Errorf("no source to generate from")
	}

	gating, err := s.gatingFact(ctx, source)
	if err != nil {
		return nil, err
	}
	if gating == nil {
		// Nothing to build a question on; the fallback stage covers this.
		s.logger.Debug("no gating fact for source",
			zap.String("source", source.ExternalID))
		return (*models.Candidate)(nil), nil
	}

	distractors, err := s.deps.KB.Distractors(ctx, gating)
	if err != nil {
		return nil, err
	}

	candidate, err := s.deps.Generator.GenerateCandidate(ctx, run, source, gating, distractors)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Candidates.Create(ctx, candidate); err != nil {
		return nil, err
	}
	return candidate, nil
}

// gatingFact chooses the fact the question will test. Only accepted facts
// qualify; a source with nothing but pending facts waits for review instead
// of getting a question drafted against an unvetted assertion.
func (s *generateCandidateStage) gatingFact(ctx context.Context, source *models.Source) (*models.Fact, error) {
	accepted, err := s.deps.KB.AcceptedFacts(ctx, &source.ID)
	if err != nil {
		return nil, err
	}
	if len(accepted) > 0 {
		return accepted[0], nil
	}
	return nil, nil
}

// refineVisualStage elaborates the candidate's illustration prompt and
// attaches the validated visual triplet.
type refineVisualStage struct {
	deps StageDeps
}

func (s *refineVisualStage) Name() string { return StageRefineVisual }

func (s *refineVisualStage) Run(ctx context.Context, artifacts *Artifacts, run RunConfig) (any, error) {
	candidate := artifacts.CandidateDraft()
	if candidate == nil {
		return (*VisualElaboration)(nil), nil
	}
	if candidate.FactID == nil {
		return nil, fmt.Errorf("candidate %s has no gating fact", candidate.ID)
	}

	fact, err := s.deps.Facts.GetByID(ctx, *candidate.FactID)
	if err != nil {
		return nil, err
	}

	elaboration, err := s.deps.Generator.ElaborateVisual(ctx, run, candidate, fact)
	if err != nil {
		return nil, err
	}

	candidate.VisualPrompt = elaboration.Prompt
	candidate.VisualTriplet = fmt.Sprintf("%s %s %s [%s]",
		elaboration.Triplet.Subject,
		elaboration.Triplet.Action,
		elaboration.Triplet.Object,
		elaboration.Triplet.Relation)
	if err := s.deps.Candidates.Update(ctx, candidate); err != nil {
		return nil, err
	}
	return elaboration, nil
}

// zeroFactFallbackStage synthesizes one fact and one candidate when
// extraction produced nothing, so the reviewer always receives something.
// It is a no-op whenever extraction found facts.
type zeroFactFallbackStage struct {
	deps   StageDeps
	logger *zap.Logger
}

func (s *zeroFactFallbackStage) Name() string { return StageZeroFactFallback }

func (s *zeroFactFallbackStage) Run(ctx context.Context, artifacts *Artifacts, run RunConfig) (any, error) {
	if len(artifacts.ExtractedFacts()) > 0 {
		return (*FallbackPayload)(nil), nil
	}
	source := artifacts.Source()
	if source == nil {
		return nil, fmt.Errorf("no source for fallback")
	}

	extracted, candidate, err := s.deps.Generator.GenerateFallback(ctx, run, source)
	if err != nil {
		return nil, err
	}

	facts, err := s.deps.KB.ReconcileFacts(ctx, source.ID, []ExtractedFact{*extracted})
	if err != nil {
		return nil, err
	}
	fact := facts[0]
	factID := fact.ID
	candidate.FactID = &factID
	candidate.SourceID = &source.ID

	if err := s.deps.Candidates.Create(ctx, candidate); err != nil {
		return nil, err
	}

	s.logger.Info("zero-fact fallback produced a candidate",
		zap.String("source", source.ExternalID),
		zap.String("fact", fact.Statement()))

	return &FallbackPayload{Fact: fact, Candidate: candidate}, nil
}
