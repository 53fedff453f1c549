package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/repositories"
	"github.com/medquiz-ai/medquiz-engine/pkg/vocab"
)

// KBService reconciles extracted assertions against the knowledge base and
// serves the accepted-fact views the pipeline builds questions from.
type KBService interface {
	// ReconcileFacts validates each extracted assertion against the relation
	// vocabulary, decides auto-acceptance, and upserts it. Duplicates merge
	// into their existing rows. Returns the persisted facts.
	ReconcileFacts(ctx context.Context, sourceID uuid.UUID, extracted []ExtractedFact) ([]*models.Fact, error)

	// AcceptedFacts lists accepted facts, optionally scoped to one source.
	AcceptedFacts(ctx context.Context, sourceID *uuid.UUID) ([]*models.Fact, error)

	// Distractors returns up to repositories.DistractorLimit accepted facts
	// sharing the gating fact's subject or its action+object pair.
	Distractors(ctx context.Context, gating *models.Fact) ([]*models.Fact, error)
}

// KBServiceDeps holds dependencies for the KB service.
type KBServiceDeps struct {
	Facts      repositories.FactRepository
	Vocabulary *vocab.Vocabulary
	Logger     *zap.Logger
}

type kbService struct {
	facts      repositories.FactRepository
	vocabulary *vocab.Vocabulary
	logger     *zap.Logger
}

// NewKBService creates the knowledge base service.
func NewKBService(deps KBServiceDeps) KBService {
	return &kbService{
		facts:      deps.Facts,
		vocabulary: deps.Vocabulary,
		logger:     deps.Logger.Named("kb"),
	}
}

var _ KBService = (*kbService)(nil)

func (s *kbService) ReconcileFacts(ctx context.Context, sourceID uuid.UUID, extracted []ExtractedFact) ([]*models.Fact, error) {
	reconciled := make([]*models.Fact, 0, len(extracted))
	autoAccepted := 0

	for _, e := range extracted {
		validation := s.vocabulary.Validate(e.Relation)
		if !validation.Valid {
			s.logger.Warn("assertion failed vocabulary validation",
				zap.String("relation", e.Relation),
				zap.Strings("errors", validation.Errors))
		}

		input := &repositories.UpsertFactInput{
			Subject:          e.Subject,
			Action:           e.Action,
			Object:           e.Object,
			Relation:         e.Relation,
			SourceID:         sourceID,
			ContextSentences: e.ContextSentences,
			SchemaValid:      validation.Valid,
		}
		// Schema-valid assertions skip the review queue. Invalid ones keep
		// whatever status the row already has (pending on first sight) so a
		// reviewer decision is never silently undone by re-extraction.
		if validation.Valid {
			input.Status = models.FactStatusAccepted
			autoAccepted++
		}

		fact, err := s.facts.Upsert(ctx, input)
		if err != nil {
			return nil, err
		}
		reconciled = append(reconciled, fact)
	}

	s.logger.Info("facts reconciled",
		zap.String("source_id", sourceID.String()),
		zap.Int("total", len(reconciled)),
		zap.Int("auto_accepted", autoAccepted))

	return reconciled, nil
}

func (s *kbService) AcceptedFacts(ctx context.Context, sourceID *uuid.UUID) ([]*models.Fact, error) {
	return s.facts.ListAccepted(ctx, sourceID)
}

func (s *kbService) Distractors(ctx context.Context, gating *models.Fact) ([]*models.Fact, error) {
	return s.facts.QueryDistractors(ctx, &repositories.DistractorQuery{
		Subject:   gating.Subject,
		Action:    gating.Action,
		Object:    gating.Object,
		ExcludeID: gating.ID,
	})
}
