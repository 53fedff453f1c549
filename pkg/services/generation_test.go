package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/llm"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

func newGeneratorFixture(t *testing.T, client *llm.MockClient) (GeneratorService, RunConfig) {
	t.Helper()
	svc := NewGeneratorService(testVocabulary(t), zap.NewNop())
	return svc, RunConfig{Client: client, Temperature: 0.7, MaxTokens: 2048}
}

func staticResponse(content string) *llm.MockClient {
	client := llm.NewMockClient()
	client.GenerateFunc = func(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResult, error) {
		return &llm.GenerateResult{Content: content}, nil
	}
	return client
}

func testSource() *models.Source {
	return &models.Source{
		ID:         uuid.New(),
		ExternalID: "PMID:1",
		Kind:       models.SourceKindLiterature,
		Title:      "Metformin outcomes",
		Content:    "Metformin lowered HbA1c in the treatment arm.",
	}
}

func testFact(sourceID uuid.UUID) *models.Fact {
	return &models.Fact{
		ID:               uuid.New(),
		Subject:          "Metformin",
		Action:           "treats",
		Object:           "Type 2 Diabetes",
		Relation:         "TREATS",
		SourceID:         sourceID,
		ContextSentences: []string{"Metformin lowered HbA1c in the treatment arm."},
		SchemaValid:      true,
		Status:           models.FactStatusAccepted,
	}
}

func TestExtractFacts(t *testing.T) {
	client := staticResponse(`{"facts": [
		{"subject": "Metformin", "action": "treats", "object": "T2DM", "relation": "TREATS",
		 "context_sentences": ["Sentence one.", "Sentence two."]},
		{"subject": "", "action": "broken", "object": "entry", "relation": "TREATS"}
	]}`)
	svc, run := newGeneratorFixture(t, client)

	facts, err := svc.ExtractFacts(context.Background(), run, testSource())
	require.NoError(t, err)

	require.Len(t, facts, 1, "entries missing a triplet member are dropped")
	assert.Equal(t, "Metformin", facts[0].Subject)
	assert.Equal(t, []string{"Sentence one.", "Sentence two."}, facts[0].ContextSentences)

	require.Len(t, client.Requests, 1)
	assert.True(t, client.Requests[0].JSONMode)
	assert.NotEmpty(t, client.Requests[0].System)
}

func TestExtractFactsEmptyList(t *testing.T) {
	svc, run := newGeneratorFixture(t, staticResponse(`{"facts": []}`))
	facts, err := svc.ExtractFacts(context.Background(), run, testSource())
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestGenerateCandidate(t *testing.T) {
	client := staticResponse(`{
		"stem": "A 52-year-old with newly diagnosed T2DM.",
		"question": "Which agent is first-line?",
		"options": ["Metformin", "Insulin", "Glipizide", "Empagliflozin", "Sitagliptin"],
		"correct_option": 0
	}`)
	svc, run := newGeneratorFixture(t, client)
	source := testSource()
	fact := testFact(source.ID)

	candidate, err := svc.GenerateCandidate(context.Background(), run, source, fact, nil)
	require.NoError(t, err)

	require.NoError(t, candidate.Validate())
	assert.Equal(t, models.CandidateStatusPending, candidate.Status)
	require.NotNil(t, candidate.FactID)
	assert.Equal(t, fact.ID, *candidate.FactID)
	require.NotNil(t, candidate.SourceID)
	assert.Equal(t, source.ID, *candidate.SourceID)
}

func TestGenerateCandidateShapeEnforcement(t *testing.T) {
	source := testSource()
	fact := testFact(source.ID)

	tests := []struct {
		name     string
		response string
	}{
		{
			name: "four options",
			response: `{"stem": "s", "question": "q",
				"options": ["a", "b", "c", "d"], "correct_option": 0}`,
		},
		{
			name: "index out of range",
			response: `{"stem": "s", "question": "q",
				"options": ["a", "b", "c", "d", "e"], "correct_option": 5}`,
		},
		{
			name: "missing question",
			response: `{"stem": "s",
				"options": ["a", "b", "c", "d", "e"], "correct_option": 1}`,
		},
		{
			name:     "not json at all",
			response: `I cannot answer that.`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, run := newGeneratorFixture(t, staticResponse(tt.response))
			_, err := svc.GenerateCandidate(context.Background(), run, source, fact, nil)
			require.Error(t, err)
			assert.Equal(t, llm.ErrorTypeMalformed, llm.GetErrorType(err),
				"partial output never crosses the adapter boundary")
		})
	}
}

func TestGenerateCandidateCoercesStringIndex(t *testing.T) {
	client := staticResponse(`{
		"stem": "s", "question": "q",
		"options": ["a", "b", "c", "d", "e"], "correct_option": "2"
	}`)
	svc, run := newGeneratorFixture(t, client)
	source := testSource()

	candidate, err := svc.GenerateCandidate(context.Background(), run, source, testFact(source.ID), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, candidate.CorrectOption)
}

func TestCritiqueStripsFences(t *testing.T) {
	client := staticResponse("```\nAPPROVED\n```")
	svc, run := newGeneratorFixture(t, client)

	verdict, err := svc.Critique(context.Background(), run, validCandidate(), "")
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", verdict)
}

func TestRefineCandidateKeepsIdentity(t *testing.T) {
	client := staticResponse(`{
		"stem": "tighter stem", "question": "sharper question?",
		"options": ["a", "b", "c", "d", "e"], "correct_option": 3
	}`)
	svc, run := newGeneratorFixture(t, client)

	draft := validCandidate()
	sourceID := uuid.New()
	factID := uuid.New()
	draft.SourceID = &sourceID
	draft.FactID = &factID
	draft.VisualPrompt = "a diagram"

	refined, err := svc.RefineCandidate(context.Background(), run, "source text", draft, "tighten everything")
	require.NoError(t, err)

	assert.Equal(t, draft.ID, refined.ID)
	assert.Equal(t, draft.SourceID, refined.SourceID)
	assert.Equal(t, draft.FactID, refined.FactID)
	assert.Equal(t, "a diagram", refined.VisualPrompt)
	assert.Equal(t, "sharper question?", refined.Question)
}

func TestElaborateVisual(t *testing.T) {
	client := staticResponse(`{
		"visual_prompt": "watercolor pancreas with insulin receptors",
		"visual_triplet": {"subject": "Insulin", "action": "binds", "object": "receptor", "relation": "TREATS"}
	}`)
	svc, run := newGeneratorFixture(t, client)
	source := testSource()

	elaboration, err := svc.ElaborateVisual(context.Background(), run, validCandidate(), testFact(source.ID))
	require.NoError(t, err)

	assert.Equal(t, "watercolor pancreas with insulin receptors", elaboration.Prompt)
	assert.Equal(t, "Insulin", elaboration.Triplet.Subject)
	assert.True(t, elaboration.Validation.Valid)
}

func TestElaborateVisualInvalidRelationRecorded(t *testing.T) {
	client := staticResponse(`{
		"visual_prompt": "a prompt",
		"visual_triplet": {"subject": "A", "action": "b", "object": "C", "relation": "NOT_A_RELATION"}
	}`)
	svc, run := newGeneratorFixture(t, client)
	source := testSource()

	elaboration, err := svc.ElaborateVisual(context.Background(), run, validCandidate(), testFact(source.ID))
	require.NoError(t, err, "an invalid triplet relation is recorded, not an error")
	assert.False(t, elaboration.Validation.Valid)
	assert.NotEmpty(t, elaboration.Validation.Errors)
}

func TestGenerateFallback(t *testing.T) {
	client := staticResponse(`{
		"fact": {"subject": "Aspirin", "action": "inhibits", "object": "COX-1", "relation": "TREATS",
			"context_sentences": ["Aspirin irreversibly inhibits COX-1."]},
		"candidate": {"stem": "s", "question": "q",
			"options": ["a", "b", "c", "d", "e"], "correct_option": 4}
	}`)
	svc, run := newGeneratorFixture(t, client)
	source := testSource()

	fact, candidate, err := svc.GenerateFallback(context.Background(), run, source)
	require.NoError(t, err)

	assert.Equal(t, "Aspirin", fact.Subject)
	require.NoError(t, candidate.Validate())
	require.NotNil(t, candidate.SourceID)
	assert.Equal(t, source.ID, *candidate.SourceID)
}
