package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/pubmed"
	"github.com/medquiz-ai/medquiz-engine/pkg/services"
)

// mockReviewService implements services.ReviewService for handler tests.
type mockReviewService struct {
	pendingFacts []*services.PendingFact
	candidates   []*models.Candidate
	candidate    *models.Candidate
	refineResult *services.RefinementResult

	setFactStatusErr      error
	setCandidateStatusErr error
	listCandidatesErr     error
	generateErr           error
	requestUpdateErr      error
	acceptImageErr        error
	removeImageErr        error

	lastFactStatus      models.FactStatus
	lastCandidateStatus models.CandidateStatus
	lastFeedback        string
	lastImageSize       string
}

var _ services.ReviewService = (*mockReviewService)(nil)

func (m *mockReviewService) ListPendingFacts(ctx context.Context, limit int) ([]*services.PendingFact, error) {
	return m.pendingFacts, nil
}

func (m *mockReviewService) SetFactStatus(ctx context.Context, factID uuid.UUID, status models.FactStatus) error {
	m.lastFactStatus = status
	return m.setFactStatusErr
}

func (m *mockReviewService) ListCandidates(ctx context.Context, status models.CandidateStatus, limit int) ([]*models.Candidate, error) {
	if m.listCandidatesErr != nil {
		return nil, m.listCandidatesErr
	}
	return m.candidates, nil
}

func (m *mockReviewService) SetCandidateStatus(ctx context.Context, candidateID uuid.UUID, status models.CandidateStatus) error {
	m.lastCandidateStatus = status
	return m.setCandidateStatusErr
}

func (m *mockReviewService) GenerateFromFact(ctx context.Context, factID uuid.UUID, modelID string) (*models.Candidate, error) {
	if m.generateErr != nil {
		return nil, m.generateErr
	}
	return m.candidate, nil
}

func (m *mockReviewService) RequestUpdate(ctx context.Context, candidateID uuid.UUID, feedback, modelID string) (*services.RefinementResult, error) {
	m.lastFeedback = feedback
	if m.requestUpdateErr != nil {
		return nil, m.requestUpdateErr
	}
	return m.refineResult, nil
}

func (m *mockReviewService) AcceptImage(ctx context.Context, candidateID uuid.UUID, size string) (*models.Candidate, error) {
	m.lastImageSize = size
	if m.acceptImageErr != nil {
		return nil, m.acceptImageErr
	}
	return m.candidate, nil
}

func (m *mockReviewService) RemoveImage(ctx context.Context, candidateID uuid.UUID) error {
	return m.removeImageErr
}

// mockIngestionService implements services.IngestionService for handler tests.
type mockIngestionService struct {
	source *models.Source
	chunks []*models.Source

	registerDocumentErr   error
	registerTextErr       error
	registerLiteratureErr error

	lastFilename string
	lastSections []services.Section
}

var _ services.IngestionService = (*mockIngestionService)(nil)

func (m *mockIngestionService) RegisterLiterature(ctx context.Context, article *pubmed.Article) (*models.Source, error) {
	if m.registerLiteratureErr != nil {
		return nil, m.registerLiteratureErr
	}
	return m.source, nil
}

func (m *mockIngestionService) RegisterDocument(ctx context.Context, filename, title string, sections []services.Section) (*models.Source, []*models.Source, error) {
	m.lastFilename = filename
	m.lastSections = sections
	if m.registerDocumentErr != nil {
		return nil, nil, m.registerDocumentErr
	}
	return m.source, m.chunks, nil
}

func (m *mockIngestionService) RegisterText(ctx context.Context, title, text string) (*models.Source, error) {
	if m.registerTextErr != nil {
		return nil, m.registerTextErr
	}
	return m.source, nil
}

// mockLiteratureClient implements LiteratureClient for handler tests.
type mockLiteratureClient struct {
	ids      []string
	articles []pubmed.Article
	article  *pubmed.Article

	searchErr error
	fetchErr  error

	lastQuery string
	lastLimit int
	lastID    string
}

var _ LiteratureClient = (*mockLiteratureClient)(nil)

func (m *mockLiteratureClient) Search(ctx context.Context, query string, limit int) ([]string, error) {
	m.lastQuery = query
	m.lastLimit = limit
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.ids, nil
}

func (m *mockLiteratureClient) Fetch(ctx context.Context, ids []string) ([]pubmed.Article, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.articles, nil
}

func (m *mockLiteratureClient) FetchOne(ctx context.Context, id string) (*pubmed.Article, error) {
	m.lastID = id
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.article, nil
}

// mockPipelineService implements services.PipelineService for handler tests.
type mockPipelineService struct {
	result  *services.PipelineResult
	runErr  error
	lastReq services.PipelineRequest
}

var _ services.PipelineService = (*mockPipelineService)(nil)

func (m *mockPipelineService) Run(ctx context.Context, req services.PipelineRequest) (*services.PipelineResult, error) {
	m.lastReq = req
	if m.runErr != nil {
		return nil, m.runErr
	}
	return m.result, nil
}

// sampleCandidate returns a well-formed candidate for handler tests.
func sampleCandidate() *models.Candidate {
	return &models.Candidate{
		ID:            uuid.New(),
		Stem:          "A 60-year-old presents with crushing chest pain.",
		Question:      "What is the next best step?",
		Options:       []string{"Aspirin", "CT chest", "Discharge", "Antacids", "Stress test"},
		CorrectOption: 0,
		Status:        models.CandidateStatusPending,
	}
}
