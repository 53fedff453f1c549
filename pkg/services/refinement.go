package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/prompts"
	"github.com/medquiz-ai/medquiz-engine/pkg/repositories"
)

// RefinementOutcome labels how a refinement run terminated. Every outcome
// carries a usable candidate; the loop never surfaces an error.
type RefinementOutcome string

const (
	// OutcomeApproved: the critic returned the approval sentinel.
	OutcomeApproved RefinementOutcome = "approved"
	// OutcomeExhausted: the iteration ceiling was reached after a
	// successful refine; the last refined draft is returned.
	OutcomeExhausted RefinementOutcome = "iteration_exhausted"
	// OutcomeStepFailed: a critique or refine step failed mid-loop; the
	// last known-good draft is returned.
	OutcomeStepFailed RefinementOutcome = "step_failed"
	// OutcomeFeedbackFallback: the very first critique failed, so reviewer
	// feedback was applied in a single non-iterative generation call.
	OutcomeFeedbackFallback RefinementOutcome = "feedback_fallback"
)

// RefinementResult is the outcome of one refinement run.
type RefinementResult struct {
	Candidate *models.Candidate `json:"candidate"`
	Outcome   RefinementOutcome `json:"outcome"`
	// RefineSteps counts refine calls that completed, bounded by the
	// configured ceiling.
	RefineSteps int `json:"refine_steps"`
}

// RefinementService drives the bounded critique/refine cycle over a draft.
type RefinementService interface {
	// Refine critiques and rewrites the draft until the critic approves or
	// the iteration ceiling is hit. Feedback, when present, is threaded
	// into every critique. The result always carries a candidate; sub-call
	// failures degrade the outcome label, they do not error.
	Refine(ctx context.Context, run RunConfig, candidate *models.Candidate, feedback string) *RefinementResult
}

// RefinementServiceDeps holds dependencies for the refinement service.
type RefinementServiceDeps struct {
	Generator  GeneratorService
	Candidates repositories.CandidateRepository
	Sources    repositories.SourceRepository
	Logger     *zap.Logger
}

type refinementService struct {
	generator  GeneratorService
	candidates repositories.CandidateRepository
	sources    repositories.SourceRepository
	logger     *zap.Logger
}

// NewRefinementService creates the refinement loop service.
func NewRefinementService(deps RefinementServiceDeps) RefinementService {
	return &refinementService{
		generator:  deps.Generator,
		candidates: deps.Candidates,
		sources:    deps.Sources,
		logger:     deps.Logger.Named("refinement"),
	}
}

var _ RefinementService = (*refinementService)(nil)

// lastGood keeps the best candidate seen so far. Each step offers its result
// through keep; failed steps leave the previous value standing, so the loop
// always has something to return.
type lastGood struct {
	candidate *models.Candidate
}

func (g *lastGood) keep(candidate *models.Candidate, err error) bool {
	if err != nil || candidate == nil {
		return false
	}
	g.candidate = candidate
	return true
}

func (s *refinementService) Refine(ctx context.Context, run RunConfig, candidate *models.Candidate, feedback string) *RefinementResult {
	best := &lastGood{candidate: candidate}
	sourceContent := s.sourceContent(ctx, candidate)

	result := s.drive(ctx, run, best, sourceContent, feedback)

	// Persist whatever the loop settled on. A persistence fault does not
	// invalidate the in-memory result.
	if result.Candidate != nil && s.candidates != nil {
		result.Candidate.ID = candidate.ID
		if err := s.candidates.Update(ctx, result.Candidate); err != nil {
			s.logger.Warn("failed to persist refined candidate",
				zap.String("candidate_id", candidate.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("refinement finished",
		zap.String("candidate_id", candidate.ID.String()),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("refine_steps", result.RefineSteps))

	return result
}

func (s *refinementService) drive(ctx context.Context, run RunConfig, best *lastGood, sourceContent, feedback string) *RefinementResult {
	steps := 0
	for iteration := 1; iteration <= run.MaxRefineIterations; iteration++ {
		verdict, err := s.generator.Critique(ctx, run, best.candidate, feedback)
		if err != nil {
			if iteration == 1 {
				// No retry: apply the reviewer's feedback in one direct
				// generation call instead of iterating blind.
				s.logger.Warn("first critique failed, applying feedback directly",
					zap.Error(err))
				direct, applyErr := s.generator.ApplyFeedback(ctx, run, sourceContent, best.candidate, feedback)
				if best.keep(direct, applyErr) {
					return &RefinementResult{Candidate: best.candidate, Outcome: OutcomeFeedbackFallback, RefineSteps: steps}
				}
				s.logger.Warn("feedback fallback failed, keeping draft", zap.Error(applyErr))
				return &RefinementResult{Candidate: best.candidate, Outcome: OutcomeStepFailed, RefineSteps: steps}
			}
			// A refine already improved the draft; a late critic fault does
			// not throw that work away.
			s.logger.Warn("critique failed after refinement, keeping refined draft",
				zap.Int("iteration", iteration),
				zap.Error(err))
			return &RefinementResult{Candidate: best.candidate, Outcome: OutcomeStepFailed, RefineSteps: steps}
		}

		if verdict == prompts.ApprovalToken {
			return &RefinementResult{Candidate: best.candidate, Outcome: OutcomeApproved, RefineSteps: steps}
		}

		refined, err := s.generator.RefineCandidate(ctx, run, sourceContent, best.candidate, verdict)
		if !best.keep(refined, err) {
			s.logger.Warn("refine step failed, keeping last good draft",
				zap.Int("iteration", iteration),
				zap.Error(err))
			return &RefinementResult{Candidate: best.candidate, Outcome: OutcomeStepFailed, RefineSteps: steps}
		}
		steps++
	}

	return &RefinementResult{Candidate: best.candidate, Outcome: OutcomeExhausted, RefineSteps: steps}
}

// sourceContent loads the draft's source text for refinement context. A
// missing source degrades to refinement without context.
func (s *refinementService) sourceContent(ctx context.Context, candidate *models.Candidate) string {
	if candidate.SourceID == nil || s.sources == nil {
		return ""
	}
	source, err := s.sources.GetByID(ctx, *candidate.SourceID)
	if err != nil {
		s.logger.Warn("could not load source for refinement context",
			zap.String("source_id", candidate.SourceID.String()),
			zap.Error(err))
		return ""
	}
	return source.Content
}
