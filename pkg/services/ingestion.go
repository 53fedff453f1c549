package services

import (
	"context"
	"crypto/md5"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/pubmed"
	"github.com/medquiz-ai/medquiz-engine/pkg/repositories"
)

// IngestionService registers sources and maintains the pending-review queue.
// All registration is idempotent on the external identifier: re-registering
// returns the existing source untouched.
type IngestionService interface {
	// RegisterLiterature stores a PubMed article as a literature source.
	RegisterLiterature(ctx context.Context, article *pubmed.Article) (*models.Source, error)

	// RegisterDocument stores a parent document plus one chunk source per
	// section. Re-registration returns the existing parent and its chunks.
	RegisterDocument(ctx context.Context, filename, title string, sections []Section) (*models.Source, []*models.Source, error)

	// RegisterText stores ad-hoc free text as a document source keyed by a
	// content hash.
	RegisterText(ctx context.Context, title, text string) (*models.Source, error)
}

// IngestionServiceDeps holds dependencies for the ingestion service.
type IngestionServiceDeps struct {
	Sources repositories.SourceRepository
	Pending repositories.PendingReviewRepository
	Logger  *zap.Logger
}

type ingestionService struct {
	sources repositories.SourceRepository
	pending repositories.PendingReviewRepository
	logger  *zap.Logger
}

// NewIngestionService creates the ingestion service.
func NewIngestionService(deps IngestionServiceDeps) IngestionService {
	return &ingestionService{
		sources: deps.Sources,
		pending: deps.Pending,
		logger:  deps.Logger.Named("ingestion"),
	}
}

var _ IngestionService = (*ingestionService)(nil)

// DocumentExternalID derives the stable identifier for a registered file.
func DocumentExternalID(filename string) string {
	return fmt.Sprintf("pdf_%x", md5.Sum([]byte(filename)))[:len("pdf_")+8]
}

// TextExternalID derives the stable identifier for ad-hoc text.
func TextExternalID(text string) string {
	return fmt.Sprintf("doc_%x", md5.Sum([]byte(text)))[:len("doc_")+8]
}

func chunkExternalID(parentExternalID string, n int) string {
	return fmt.Sprintf("%s_chunk_%d", parentExternalID, n)
}

func (s *ingestionService) RegisterLiterature(ctx context.Context, article *pubmed.Article) (*models.Source, error) {
	if article == nil || article.PMID == "" {
		return nil, fmt.Errorf("article has no PMID")
	}

	externalID := article.ExternalID()
	existing, err := s.sources.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.logger.Debug("literature source already registered",
			zap.String("external_id", externalID))
		return existing, nil
	}

	source := &models.Source{
		ExternalID: externalID,
		Kind:       models.SourceKindLiterature,
		Title:      article.Title,
		Authors:    article.Authors,
		Year:       article.Year,
		Content:    article.Abstract,
	}
	if err := s.sources.Create(ctx, source); err != nil {
		return nil, err
	}
	if err := s.pending.Register(ctx, source.ID); err != nil {
		return nil, err
	}

	s.logger.Info("literature source registered",
		zap.String("external_id", externalID),
		zap.String("title", article.Title))

	return source, nil
}

func (s *ingestionService) RegisterDocument(ctx context.Context, filename, title string, sections []Section) (*models.Source, []*models.Source, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, nil, fmt.Errorf("filename is required")
	}
	if title == "" {
		title = filename
	}

	externalID := DocumentExternalID(filename)
	existing, err := s.sources.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		children, err := s.sources.ListChildren(ctx, existing.ID)
		if err != nil {
			return nil, nil, err
		}
		s.logger.Debug("document already registered",
			zap.String("external_id", externalID),
			zap.Int("chunks", len(children)))
		return existing, children, nil
	}

	parent := &models.Source{
		ExternalID: externalID,
		Kind:       models.SourceKindDocument,
		Title:      title,
	}
	if err := s.sources.Create(ctx, parent); err != nil {
		return nil, nil, err
	}

	chunks := make([]*models.Source, 0, len(sections))
	for i, section := range sections {
		parentID := parent.ID
		chunk := &models.Source{
			ExternalID:   chunkExternalID(externalID, i),
			Kind:         models.SourceKindDocumentChunk,
			Title:        title,
			Content:      section.Content,
			ParentID:     &parentID,
			SectionTitle: section.Title,
			ChunkOrder:   i,
		}
		if err := s.sources.Create(ctx, chunk); err != nil {
			return nil, nil, err
		}
		if err := s.pending.Register(ctx, chunk.ID); err != nil {
			return nil, nil, err
		}
		chunks = append(chunks, chunk)
	}

	s.logger.Info("document registered",
		zap.String("external_id", externalID),
		zap.String("filename", filename),
		zap.Int("chunks", len(chunks)))

	return parent, chunks, nil
}

func (s *ingestionService) RegisterText(ctx context.Context, title, text string) (*models.Source, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text is empty")
	}
	if title == "" {
		title = "Ad-hoc text"
	}

	externalID := TextExternalID(text)
	existing, err := s.sources.GetByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	source := &models.Source{
		ExternalID: externalID,
		Kind:       models.SourceKindDocument,
		Title:      title,
		Content:    text,
	}
	if err := s.sources.Create(ctx, source); err != nil {
		return nil, err
	}
	if err := s.pending.Register(ctx, source.ID); err != nil {
		return nil, err
	}

	s.logger.Info("text source registered", zap.String("external_id", externalID))
	return source, nil
}
