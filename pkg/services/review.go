package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/apperrors"
	"github.com/medquiz-ai/medquiz-engine/pkg/images"
	"github.com/medquiz-ai/medquiz-engine/pkg/llm"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/repositories"
)

// PendingFact pairs a fact awaiting review with its source provenance.
type PendingFact struct {
	Fact   *models.Fact   `json:"fact"`
	Source *models.Source `json:"source,omitempty"`
}

// ReviewService drives the human review workflow: the pending queue, fact
// and candidate decisions, feedback-driven refinement, and image actions.
type ReviewService interface {
	// ListPendingFacts returns facts awaiting review, newest first, with
	// their source provenance attached.
	ListPendingFacts(ctx context.Context, limit int) ([]*PendingFact, error)

	// SetFactStatus records a reviewer decision on a fact. Any transition
	// is legal; reviewers correct themselves.
	SetFactStatus(ctx context.Context, factID uuid.UUID, status models.FactStatus) error

	// ListCandidates returns candidates in the given status.
	ListCandidates(ctx context.Context, status models.CandidateStatus, limit int) ([]*models.Candidate, error)

	// SetCandidateStatus records a reviewer decision on a candidate.
	// Approval removes the candidate's source from the pending queue.
	SetCandidateStatus(ctx context.Context, candidateID uuid.UUID, status models.CandidateStatus) error

	// GenerateFromFact writes a new candidate testing an accepted fact,
	// with distractor material from the knowledge base. A pending or
	// rejected fact is an ErrInvalidStatus.
	GenerateFromFact(ctx context.Context, factID uuid.UUID, modelID string) (*models.Candidate, error)

	// RequestUpdate runs the refinement loop over a candidate with the
	// reviewer's feedback.
	RequestUpdate(ctx context.Context, candidateID uuid.UUID, feedback, modelID string) (*RefinementResult, error)

	// AcceptImage renders the candidate's visual prompt, writes the image
	// to disk, and records the reference. size is "WxH" or empty for the
	// configured default.
	AcceptImage(ctx context.Context, candidateID uuid.UUID, size string) (*models.Candidate, error)

	// RemoveImage clears the candidate's image reference.
	RemoveImage(ctx context.Context, candidateID uuid.UUID) error
}

// ReviewServiceDeps holds dependencies for the review service.
type ReviewServiceDeps struct {
	Facts      repositories.FactRepository
	Candidates repositories.CandidateRepository
	Sources    repositories.SourceRepository
	Pending    repositories.PendingReviewRepository
	Generator  GeneratorService
	Refinement RefinementService
	KB         KBService
	Registry   *llm.Registry
	Renderer   images.Renderer
	// ImageDir is where accepted images are written.
	ImageDir string
	// Sampling defaults and the refine ceiling captured into RunConfigs.
	Temperature         float64
	MaxTokens           int
	MaxRefineIterations int
	Logger              *zap.Logger
}

type reviewService struct {
	deps   ReviewServiceDeps
	logger *zap.Logger
}

// NewReviewService creates the review workflow service.
func NewReviewService(deps ReviewServiceDeps) ReviewService {
	return &reviewService{
		deps:   deps,
		logger: deps.Logger.Named("review"),
	}
}

var _ ReviewService = (*reviewService)(nil)

func (s *reviewService) ListPendingFacts(ctx context.Context, limit int) ([]*PendingFact, error) {
	facts, err := s.deps.Facts.ListByStatus(ctx, models.FactStatusPending, limit)
	if err != nil {
		return nil, err
	}

	sources := make(map[uuid.UUID]*models.Source, len(facts))
	pending := make([]*PendingFact, 0, len(facts))
	for _, fact := range facts {
		source, ok := sources[fact.SourceID]
		if !ok {
			source, err = s.deps.Sources.GetByID(ctx, fact.SourceID)
			if err != nil {
				// Provenance is best effort; a missing source row does not
				// hide the fact from the queue.
				s.logger.Warn("could not load source for pending fact",
					zap.String("fact_id", fact.ID.String()),
					zap.Error(err))
				source = nil
			}
			sources[fact.SourceID] = source
		}
		pending = append(pending, &PendingFact{Fact: fact, Source: source})
	}
	return pending, nil
}

func (s *reviewService) SetFactStatus(ctx context.Context, factID uuid.UUID, status models.FactStatus) error {
	if !models.IsValidFactStatus(status) {
		return fmt.Errorf("status %q: %w", status, apperrors.ErrInvalidStatus)
	}
	found, err := s.deps.Facts.SetStatus(ctx, factID, status)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("fact %s: %w", factID, apperrors.ErrNotFound)
	}

	s.logger.Info("fact reviewed",
		zap.String("fact_id", factID.String()),
		zap.String("status", string(status)))
	return nil
}

func (s *reviewService) ListCandidates(ctx context.Context, status models.CandidateStatus, limit int) ([]*models.Candidate, error) {
	if !models.IsValidCandidateStatus(status) {
		return nil, fmt.Errorf("status %q: %w", status, apperrors.ErrInvalidStatus)
	}
	return s.deps.Candidates.ListByStatus(ctx, status, limit)
}

func (s *reviewService) SetCandidateStatus(ctx context.Context, candidateID uuid.UUID, status models.CandidateStatus) error {
	if !models.IsValidCandidateStatus(status) {
		return fmt.Errorf("status %q: %w", status, apperrors.ErrInvalidStatus)
	}

	candidate, err := s.deps.Candidates.GetByID(ctx, candidateID)
	if err != nil {
		return err
	}

	if _, err := s.deps.Candidates.SetStatus(ctx, candidateID, status); err != nil {
		return err
	}

	// An approved question completes its source's review: the source leaves
	// the pending queue.
	if status == models.CandidateStatusApproved && candidate.SourceID != nil {
		if err := s.deps.Pending.Clear(ctx, *candidate.SourceID); err != nil {
			return err
		}
	}

	s.logger.Info("candidate reviewed",
		zap.String("candidate_id", candidateID.String()),
		zap.String("status", string(status)))
	return nil
}

func (s *reviewService) GenerateFromFact(ctx context.Context, factID uuid.UUID, modelID string) (*models.Candidate, error) {
	fact, err := s.deps.Facts.GetByID(ctx, factID)
	if err != nil {
		return nil, err
	}
	// Questions gate on accepted facts only.
	if !fact.IsAccepted() {
		return nil, fmt.Errorf("fact %s has status %s: %w", fact.ID, fact.Status, apperrors.ErrInvalidStatus)
	}
	source, err := s.deps.Sources.GetByID(ctx, fact.SourceID)
	if err != nil {
		return nil, err
	}

	run, err := s.runConfig(ctx, modelID)
	if err != nil {
		return nil, err
	}

	distractors, err := s.deps.KB.Distractors(ctx, fact)
	if err != nil {
		return nil, err
	}

	candidate, err := s.deps.Generator.GenerateCandidate(ctx, run, source, fact, distractors)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Candidates.Create(ctx, candidate); err != nil {
		return nil, err
	}
	return candidate, nil
}

func (s *reviewService) RequestUpdate(ctx context.Context, candidateID uuid.UUID, feedback, modelID string) (*RefinementResult, error) {
	candidate, err := s.deps.Candidates.GetByID(ctx, candidateID)
	if err != nil {
		return nil, err
	}

	run, err := s.runConfig(ctx, modelID)
	if err != nil {
		return nil, err
	}

	return s.deps.Refinement.Refine(ctx, run, candidate, feedback), nil
}

func (s *reviewService) AcceptImage(ctx context.Context, candidateID uuid.UUID, size string) (*models.Candidate, error) {
	candidate, err := s.deps.Candidates.GetByID(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	if candidate.VisualPrompt == "" {
		return nil, fmt.Errorf("candidate %s has no visual prompt: %w", candidateID, apperrors.ErrInvalidInput)
	}
	if s.deps.Renderer == nil {
		return nil, fmt.Errorf("image rendering is not configured")
	}

	data, err := s.deps.Renderer.Render(ctx, candidate.VisualPrompt, size)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.deps.ImageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	path := filepath.Join(s.deps.ImageDir, candidateID.String()+".png")
	if err := os.WriteFile(path, data.Bytes, 0o644); err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}

	if err := s.deps.Candidates.SetImage(ctx, candidateID, path); err != nil {
		return nil, err
	}

	s.logger.Info("image accepted",
		zap.String("candidate_id", candidateID.String()),
		zap.String("path", path),
		zap.String("size", data.Size.String()))

	return s.deps.Candidates.GetByID(ctx, candidateID)
}

func (s *reviewService) RemoveImage(ctx context.Context, candidateID uuid.UUID) error {
	if _, err := s.deps.Candidates.GetByID(ctx, candidateID); err != nil {
		return err
	}
	return s.deps.Candidates.ClearImage(ctx, candidateID)
}

// runConfig resolves the model selection into a RunConfig for one operation.
func (s *reviewService) runConfig(ctx context.Context, modelID string) (RunConfig, error) {
	client, err := s.deps.Registry.ClientFor(ctx, modelID)
	if err != nil {
		return RunConfig{}, fmt.Errorf("resolve generation model: %w", err)
	}
	cfg := s.deps.Registry.Resolve(modelID)
	return RunConfig{
		Client:              client,
		ModelID:             cfg.Identifier,
		Temperature:         s.deps.Temperature,
		MaxTokens:           s.deps.MaxTokens,
		MaxRefineIterations: s.deps.MaxRefineIterations,
	}, nil
}
