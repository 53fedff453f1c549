//go:build integration

package repositories

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/testhelpers"
)

// factTestContext holds test dependencies for fact repository tests.
type factTestContext struct {
	t        *testing.T
	engineDB *testhelpers.EngineDB
	sources  SourceRepository
	facts    FactRepository
}

func setupFactTest(t *testing.T) *factTestContext {
	engineDB := testhelpers.GetEngineDB(t)
	return &factTestContext{
		t:        t,
		engineDB: engineDB,
		sources:  NewSourceRepository(engineDB.DB),
		facts:    NewFactRepository(engineDB.DB),
	}
}

// createSource inserts a literature source with a unique external id.
func (tc *factTestContext) createSource() *models.Source {
	tc.t.Helper()
	source := &models.Source{
		ExternalID: fmt.Sprintf("PMID:%s", uuid.New().String()[:13]),
		Kind:       models.SourceKindLiterature,
		Title:      "Test article",
		Content:    "s1. s2. s3.",
	}
	require.NoError(tc.t, tc.sources.Create(context.Background(), source))
	return source
}

func TestFactUpsertMergesDuplicates(t *testing.T) {
	tc := setupFactTest(t)
	ctx := context.Background()
	source := tc.createSource()

	first, err := tc.facts.Upsert(ctx, &UpsertFactInput{
		Subject:          "Metformin",
		Action:           "treats",
		Object:           "Type 2 Diabetes",
		Relation:         "TREATS",
		SourceID:         source.ID,
		ContextSentences: []string{"s1", "s2"},
		SchemaValid:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.FactStatusPending, first.Status)
	assert.Equal(t, []string{"s1", "s2"}, first.ContextSentences)

	// Same dedup key again: identity is preserved, sentences replaced by the
	// new non-empty list.
	second, err := tc.facts.Upsert(ctx, &UpsertFactInput{
		Subject:          "Metformin",
		Action:           "treats",
		Object:           "Type 2 Diabetes",
		Relation:         "TREATS",
		SourceID:         source.ID,
		ContextSentences: []string{"s2", "s3"},
		SchemaValid:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"s2", "s3"}, second.ContextSentences)

	all, err := tc.facts.ListBySource(ctx, source.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFactUpsertKeepsSentencesOnEmptyInput(t *testing.T) {
	tc := setupFactTest(t)
	ctx := context.Background()
	source := tc.createSource()

	input := &UpsertFactInput{
		Subject:          "Aspirin",
		Action:           "prevents",
		Object:           "stroke",
		Relation:         "PREVENTS",
		SourceID:         source.ID,
		ContextSentences: []string{"s1"},
		SchemaValid:      true,
	}
	_, err := tc.facts.Upsert(ctx, input)
	require.NoError(t, err)

	input.ContextSentences = nil
	merged, err := tc.facts.Upsert(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, merged.ContextSentences)
}

func TestFactUpsertStatusOverwriteOnlyWhenProvided(t *testing.T) {
	tc := setupFactTest(t)
	ctx := context.Background()
	source := tc.createSource()

	input := &UpsertFactInput{
		Subject:  "Warfarin",
		Action:   "interacts with",
		Object:   "aspirin",
		Relation: "INTERACTS_WITH",
		SourceID: source.ID,
		Status:   models.FactStatusAccepted,
	}
	fact, err := tc.facts.Upsert(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, models.FactStatusAccepted, fact.Status)

	// Empty status on re-extraction keeps the reviewer's decision.
	input.Status = ""
	fact, err = tc.facts.Upsert(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, models.FactStatusAccepted, fact.Status)
}

func TestFactSetStatus(t *testing.T) {
	tc := setupFactTest(t)
	ctx := context.Background()
	source := tc.createSource()

	fact, err := tc.facts.Upsert(ctx, &UpsertFactInput{
		Subject: "Statin", Action: "treats", Object: "hyperlipidemia",
		Relation: "TREATS", SourceID: source.ID,
	})
	require.NoError(t, err)

	ok, err := tc.facts.SetStatus(ctx, fact.ID, models.FactStatusAccepted)
	require.NoError(t, err)
	assert.True(t, ok)

	// Reviewer correction: accepted back to pending is legal.
	ok, err = tc.facts.SetStatus(ctx, fact.ID, models.FactStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tc.facts.SetStatus(ctx, uuid.New(), models.FactStatusAccepted)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryDistractors(t *testing.T) {
	tc := setupFactTest(t)
	ctx := context.Background()
	source := tc.createSource()

	subject := "Drug-" + uuid.New().String()[:8]
	var anchor *models.Fact
	for i := 0; i < 12; i++ {
		fact, err := tc.facts.Upsert(ctx, &UpsertFactInput{
			Subject:  subject,
			Action:   "treats",
			Object:   fmt.Sprintf("condition-%d", i),
			Relation: "TREATS",
			SourceID: source.ID,
			Status:   models.FactStatusAccepted,
		})
		require.NoError(t, err)
		if anchor == nil {
			anchor = fact
		}
	}
	// A pending fact with the same subject must never surface.
	_, err := tc.facts.Upsert(ctx, &UpsertFactInput{
		Subject: subject, Action: "treats", Object: "condition-pending",
		Relation: "TREATS", SourceID: source.ID,
	})
	require.NoError(t, err)

	results, err := tc.facts.QueryDistractors(ctx, &DistractorQuery{
		Subject:   subject,
		ExcludeID: anchor.ID,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), DistractorLimit)
	assert.NotEmpty(t, results)
	for _, f := range results {
		assert.Equal(t, models.FactStatusAccepted, f.Status)
		assert.NotEqual(t, anchor.ID, f.ID)
	}
}

func TestQueryDistractorsActionObjectFilter(t *testing.T) {
	tc := setupFactTest(t)
	ctx := context.Background()
	source := tc.createSource()

	object := "Condition-" + uuid.New().String()[:8]
	for i := 0; i < 3; i++ {
		_, err := tc.facts.Upsert(ctx, &UpsertFactInput{
			Subject:  fmt.Sprintf("agent-%d", i),
			Action:   "causes",
			Object:   object,
			Relation: "CAUSES",
			SourceID: source.ID,
			Status:   models.FactStatusAccepted,
		})
		require.NoError(t, err)
	}

	results, err := tc.facts.QueryDistractors(ctx, &DistractorQuery{
		Action: "causes",
		Object: object,
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestListAcceptedScopedToSource(t *testing.T) {
	tc := setupFactTest(t)
	ctx := context.Background()
	source := tc.createSource()
	other := tc.createSource()

	_, err := tc.facts.Upsert(ctx, &UpsertFactInput{
		Subject: "A", Action: "treats", Object: "B",
		Relation: "TREATS", SourceID: source.ID, Status: models.FactStatusAccepted,
	})
	require.NoError(t, err)
	_, err = tc.facts.Upsert(ctx, &UpsertFactInput{
		Subject: "C", Action: "treats", Object: "D",
		Relation: "TREATS", SourceID: other.ID, Status: models.FactStatusAccepted,
	})
	require.NoError(t, err)

	scoped, err := tc.facts.ListAccepted(ctx, &source.ID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "A", scoped[0].Subject)
}
