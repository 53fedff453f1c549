package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

func newRefinementFixture(generator *mockGenerator, maxIterations int) (RefinementService, *mockCandidateRepo, RunConfig) {
	candidates := newMockCandidateRepo()
	svc := NewRefinementService(RefinementServiceDeps{
		Generator:  generator,
		Candidates: candidates,
		Sources:    newMockSourceRepo(),
		Logger:     zap.NewNop(),
	})
	run := RunConfig{MaxRefineIterations: maxIterations}
	return svc, candidates, run
}

func TestRefineApprovedImmediately(t *testing.T) {
	generator := &mockGenerator{
		CritiqueFunc: func(ctx context.Context, run RunConfig, c *models.Candidate, feedback string) (string, error) {
			return "APPROVED", nil
		},
	}
	svc, _, run := newRefinementFixture(generator, 2)
	draft := validCandidate()

	result := svc.Refine(context.Background(), run, draft, "")

	assert.Equal(t, OutcomeApproved, result.Outcome)
	assert.Equal(t, 0, result.RefineSteps)
	assert.Equal(t, 0, generator.RefineCalls, "approval must short-circuit refinement")
	assert.Equal(t, draft.Question, result.Candidate.Question)
	require.NoError(t, result.Candidate.Validate())
}

func TestRefineFirstCritiqueFailureFallsBackToFeedback(t *testing.T) {
	applied := validCandidate()
	applied.Question = "Updated per reviewer feedback?"

	generator := &mockGenerator{
		CritiqueFunc: func(ctx context.Context, run RunConfig, c *models.Candidate, feedback string) (string, error) {
			return "", errors.New("critic unavailable")
		},
		ApplyFeedbackFunc: func(ctx context.Context, run RunConfig, sourceContent string, c *models.Candidate, feedback string) (*models.Candidate, error) {
			return applied, nil
		},
	}
	svc, _, run := newRefinementFixture(generator, 2)

	result := svc.Refine(context.Background(), run, validCandidate(), "make the stem specific")

	assert.Equal(t, OutcomeFeedbackFallback, result.Outcome)
	assert.Equal(t, applied.Question, result.Candidate.Question)
	assert.Equal(t, 1, generator.CritiqueCalls, "no retry on the first critique failure")
	assert.Equal(t, 1, generator.ApplyFeedbackCalls)
	assert.Equal(t, 0, generator.RefineCalls)
	require.NoError(t, result.Candidate.Validate())
}

func TestRefineEverySubCallFailingStillReturnsCandidate(t *testing.T) {
	generator := &mockGenerator{
		CritiqueFunc: func(ctx context.Context, run RunConfig, c *models.Candidate, feedback string) (string, error) {
			return "", errors.New("critic down")
		},
		ApplyFeedbackFunc: func(ctx context.Context, run RunConfig, sourceContent string, c *models.Candidate, feedback string) (*models.Candidate, error) {
			return nil, errors.New("generator down")
		},
	}
	svc, _, run := newRefinementFixture(generator, 2)
	draft := validCandidate()

	result := svc.Refine(context.Background(), run, draft, "feedback")

	require.NotNil(t, result.Candidate)
	assert.Equal(t, OutcomeStepFailed, result.Outcome)
	assert.Equal(t, draft.Question, result.Candidate.Question)
	require.NoError(t, result.Candidate.Validate())
}

func TestRefineRefineFailureReturnsLastGood(t *testing.T) {
	generator := &mockGenerator{
		CritiqueFunc: func(ctx context.Context, run RunConfig, c *models.Candidate, feedback string) (string, error) {
			return "options overlap, tighten them", nil
		},
		RefineFunc: func(ctx context.Context, run RunConfig, sourceContent string, c *models.Candidate, critique string) (*models.Candidate, error) {
			return nil, errors.New("malformed output")
		},
	}
	svc, _, run := newRefinementFixture(generator, 2)
	draft := validCandidate()

	result := svc.Refine(context.Background(), run, draft, "")

	assert.Equal(t, OutcomeStepFailed, result.Outcome)
	assert.Equal(t, 0, result.RefineSteps)
	assert.Equal(t, draft.Question, result.Candidate.Question)
}

func TestRefineLateCritiqueFailureKeepsRefinedDraft(t *testing.T) {
	refined := validCandidate()
	refined.Question = "Refined once?"

	critiques := 0
	generator := &mockGenerator{
		CritiqueFunc: func(ctx context.Context, run RunConfig, c *models.Candidate, feedback string) (string, error) {
			critiques++
			if critiques == 1 {
				return "stem too vague", nil
			}
			return "", errors.New("critic down")
		},
		RefineFunc: func(ctx context.Context, run RunConfig, sourceContent string, c *models.Candidate, critique string) (*models.Candidate, error) {
			return refined, nil
		},
	}
	svc, _, run := newRefinementFixture(generator, 3)

	result := svc.Refine(context.Background(), run, validCandidate(), "")

	assert.Equal(t, OutcomeStepFailed, result.Outcome)
	assert.Equal(t, 1, result.RefineSteps)
	assert.Equal(t, refined.Question, result.Candidate.Question,
		"the once-refined draft survives a late critic fault")
	assert.Equal(t, 0, generator.ApplyFeedbackCalls,
		"feedback fallback applies only to the first critique")
}

func TestRefineIterationCeiling(t *testing.T) {
	second := validCandidate()
	second.Question = "Refined twice?"

	refines := 0
	generator := &mockGenerator{
		CritiqueFunc: func(ctx context.Context, run RunConfig, c *models.Candidate, feedback string) (string, error) {
			return "still not approved", nil
		},
		RefineFunc: func(ctx context.Context, run RunConfig, sourceContent string, c *models.Candidate, critique string) (*models.Candidate, error) {
			refines++
			if refines == 2 {
				return second, nil
			}
			out := validCandidate()
			out.Question = "Refined once?"
			return out, nil
		},
	}
	svc, _, run := newRefinementFixture(generator, 2)

	result := svc.Refine(context.Background(), run, validCandidate(), "")

	assert.Equal(t, OutcomeExhausted, result.Outcome)
	assert.Equal(t, 2, result.RefineSteps)
	assert.Equal(t, 2, generator.RefineCalls, "the ceiling bounds refine steps")
	assert.Equal(t, 2, generator.CritiqueCalls, "no critique after the final refine")
	assert.Equal(t, second.Question, result.Candidate.Question)
	require.NoError(t, result.Candidate.Validate())
}

func TestRefinePersistsResultUnderDraftIdentity(t *testing.T) {
	refined := validCandidate()
	refined.Question = "Refined?"

	critiques := 0
	generator := &mockGenerator{
		CritiqueFunc: func(ctx context.Context, run RunConfig, c *models.Candidate, feedback string) (string, error) {
			critiques++
			if critiques == 1 {
				return "needs work", nil
			}
			return "APPROVED", nil
		},
		RefineFunc: func(ctx context.Context, run RunConfig, sourceContent string, c *models.Candidate, critique string) (*models.Candidate, error) {
			return refined, nil
		},
	}
	svc, candidates, run := newRefinementFixture(generator, 3)
	draft := validCandidate()

	result := svc.Refine(context.Background(), run, draft, "")

	assert.Equal(t, OutcomeApproved, result.Outcome)
	assert.Equal(t, draft.ID, result.Candidate.ID, "refinement mutates content, never identity")
	assert.Equal(t, 1, candidates.UpdateCalls)

	stored, err := candidates.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Equal(t, refined.Question, stored.Question)
}

func TestRefinePersistenceFaultDoesNotFailTheRun(t *testing.T) {
	generator := &mockGenerator{}
	svc, candidates, run := newRefinementFixture(generator, 2)
	candidates.UpdateErr = errors.New("db down")

	result := svc.Refine(context.Background(), run, validCandidate(), "")

	require.NotNil(t, result.Candidate)
	assert.Equal(t, OutcomeApproved, result.Outcome)
}
