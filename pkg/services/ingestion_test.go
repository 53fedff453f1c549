package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/pubmed"
)

func newIngestionFixture(t *testing.T) (IngestionService, *mockSourceRepo, *mockPendingRepo) {
	t.Helper()
	sources := newMockSourceRepo()
	pending := newMockPendingRepo()
	svc := NewIngestionService(IngestionServiceDeps{
		Sources: sources,
		Pending: pending,
		Logger:  zap.NewNop(),
	})
	return svc, sources, pending
}

func TestRegisterLiterature(t *testing.T) {
	svc, _, pending := newIngestionFixture(t)
	year := 2020
	article := &pubmed.Article{
		PMID:     "31978945",
		Title:    "A Novel Coronavirus",
		Authors:  "Zhu N, Zhang D",
		Year:     &year,
		Abstract: "We describe a novel coronavirus.",
	}

	source, err := svc.RegisterLiterature(context.Background(), article)
	require.NoError(t, err)

	assert.Equal(t, "PMID:31978945", source.ExternalID)
	assert.Equal(t, models.SourceKindLiterature, source.Kind)
	assert.Equal(t, article.Abstract, source.Content)

	queued, err := pending.IsPending(context.Background(), source.ID)
	require.NoError(t, err)
	assert.True(t, queued)
}

func TestRegisterLiteratureIdempotent(t *testing.T) {
	svc, sources, _ := newIngestionFixture(t)
	article := &pubmed.Article{PMID: "111", Title: "Once"}

	first, err := svc.RegisterLiterature(context.Background(), article)
	require.NoError(t, err)
	second, err := svc.RegisterLiterature(context.Background(), article)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, sources.CreateCalls)
}

func TestRegisterDocument(t *testing.T) {
	svc, _, pending := newIngestionFixture(t)

	parent, chunks, err := svc.RegisterDocument(context.Background(), "cardiology.pdf", "Cardiology Notes", []Section{
		{Title: "Methods", Content: "Study design."},
		{Title: "Results", Content: "Findings."},
	})
	require.NoError(t, err)

	assert.Equal(t, models.SourceKindDocument, parent.Kind)
	assert.Equal(t, DocumentExternalID("cardiology.pdf"), parent.ExternalID)
	assert.Regexp(t, `^pdf_[0-9a-f]{8}$`, parent.ExternalID)
	assert.Empty(t, parent.Content, "the parent carries no content, its chunks do")

	require.Len(t, chunks, 2)
	for i, chunk := range chunks {
		assert.Equal(t, fmt.Sprintf("%s_chunk_%d", parent.ExternalID, i), chunk.ExternalID)
		assert.Equal(t, models.SourceKindDocumentChunk, chunk.Kind)
		require.NotNil(t, chunk.ParentID)
		assert.Equal(t, parent.ID, *chunk.ParentID)
		assert.Equal(t, i, chunk.ChunkOrder)

		queued, err := pending.IsPending(context.Background(), chunk.ID)
		require.NoError(t, err)
		assert.True(t, queued, "every chunk enters the review queue")
	}
	assert.Equal(t, "Methods", chunks[0].SectionTitle)
}

func TestRegisterDocumentIdempotent(t *testing.T) {
	svc, sources, _ := newIngestionFixture(t)
	sectionList := []Section{{Title: "Abstract", Content: "Text."}}

	parent1, chunks1, err := svc.RegisterDocument(context.Background(), "doc.pdf", "", sectionList)
	require.NoError(t, err)
	parent2, chunks2, err := svc.RegisterDocument(context.Background(), "doc.pdf", "", sectionList)
	require.NoError(t, err)

	assert.Equal(t, parent1.ID, parent2.ID)
	assert.Len(t, chunks2, len(chunks1))
	assert.Equal(t, 2, sources.CreateCalls, "parent plus one chunk, created once")
}

func TestRegisterText(t *testing.T) {
	svc, sources, _ := newIngestionFixture(t)

	source, err := svc.RegisterText(context.Background(), "", "Free text about aspirin.")
	require.NoError(t, err)
	assert.Regexp(t, `^doc_[0-9a-f]{8}$`, source.ExternalID)
	assert.Equal(t, models.SourceKindDocument, source.Kind)

	again, err := svc.RegisterText(context.Background(), "", "Free text about aspirin.")
	require.NoError(t, err)
	assert.Equal(t, source.ID, again.ID, "same text resolves to the same source")
	assert.Equal(t, 1, sources.CreateCalls)

	_, err = svc.RegisterText(context.Background(), "", "   ")
	assert.Error(t, err)
}

func TestRegisterLiteratureRequiresPMID(t *testing.T) {
	svc, _, _ := newIngestionFixture(t)
	_, err := svc.RegisterLiterature(context.Background(), &pubmed.Article{Title: "No id"})
	assert.Error(t, err)
}
