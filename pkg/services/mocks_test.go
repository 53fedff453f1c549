package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/medquiz-ai/medquiz-engine/pkg/apperrors"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/pubmed"
	"github.com/medquiz-ai/medquiz-engine/pkg/repositories"
)

// mockGenerator is a function-field mock of GeneratorService with call
// counters for loop and pipeline tests.
type mockGenerator struct {
	ExtractFactsFunc     func(ctx context.Context, run RunConfig, source *models.Source) ([]ExtractedFact, error)
	GenerateFunc         func(ctx context.Context, run RunConfig, source *models.Source, fact *models.Fact, distractors []*models.Fact) (*models.Candidate, error)
	CritiqueFunc         func(ctx context.Context, run RunConfig, candidate *models.Candidate, feedback string) (string, error)
	RefineFunc           func(ctx context.Context, run RunConfig, sourceContent string, candidate *models.Candidate, critique string) (*models.Candidate, error)
	ApplyFeedbackFunc    func(ctx context.Context, run RunConfig, sourceContent string, candidate *models.Candidate, feedback string) (*models.Candidate, error)
	ElaborateVisualFunc  func(ctx context.Context, run RunConfig, candidate *models.Candidate, fact *models.Fact) (*VisualElaboration, error)
	GenerateFallbackFunc func(ctx context.Context, run RunConfig, source *models.Source) (*ExtractedFact, *models.Candidate, error)

	ExtractCalls       int
	GenerateCalls      int
	CritiqueCalls      int
	RefineCalls        int
	ApplyFeedbackCalls int
	VisualCalls        int
	FallbackCalls      int
}

var _ GeneratorService = (*mockGenerator)(nil)

func (m *mockGenerator) ExtractFacts(ctx context.Context, run RunConfig, source *models.Source) ([]ExtractedFact, error) {
	m.ExtractCalls++
	if m.ExtractFactsFunc != nil {
		return m.ExtractFactsFunc(ctx, run, source)
	}
	return nil, nil
}

func (m *mockGenerator) GenerateCandidate(ctx context.Context, run RunConfig, source *models.Source, fact *models.Fact, distractors []*models.Fact) (*models.Candidate, error) {
	m.GenerateCalls++
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, run, source, fact, distractors)
	}
	candidate := validCandidate()
	candidate.SourceID = &fact.SourceID
	factID := fact.ID
	candidate.FactID = &factID
	return candidate, nil
}

func (m *mockGenerator) Critique(ctx context.Context, run RunConfig, candidate *models.Candidate, feedback string) (string, error) {
	m.CritiqueCalls++
	if m.CritiqueFunc != nil {
		return m.CritiqueFunc(ctx, run, candidate, feedback)
	}
	return "APPROVED", nil
}

func (m *mockGenerator) RefineCandidate(ctx context.Context, run RunConfig, sourceContent string, candidate *models.Candidate, critique string) (*models.Candidate, error) {
	m.RefineCalls++
	if m.RefineFunc != nil {
		return m.RefineFunc(ctx, run, sourceContent, candidate, critique)
	}
	return validCandidate(), nil
}

func (m *mockGenerator) ApplyFeedback(ctx context.Context, run RunConfig, sourceContent string, candidate *models.Candidate, feedback string) (*models.Candidate, error) {
	m.ApplyFeedbackCalls++
	if m.ApplyFeedbackFunc != nil {
		return m.ApplyFeedbackFunc(ctx, run, sourceContent, candidate, feedback)
	}
	return validCandidate(), nil
}

func (m *mockGenerator) ElaborateVisual(ctx context.Context, run RunConfig, candidate *models.Candidate, fact *models.Fact) (*VisualElaboration, error) {
	m.VisualCalls++
	if m.ElaborateVisualFunc != nil {
		return m.ElaborateVisualFunc(ctx, run, candidate, fact)
	}
	return &VisualElaboration{Prompt: "an illustration"}, nil
}

func (m *mockGenerator) GenerateFallback(ctx context.Context, run RunConfig, source *models.Source) (*ExtractedFact, *models.Candidate, error) {
	m.FallbackCalls++
	if m.GenerateFallbackFunc != nil {
		return m.GenerateFallbackFunc(ctx, run, source)
	}
	fact := ExtractedFact{Subject: "Aspirin", Action: "inhibits", Object: "COX-1", Relation: "TREATS"}
	return &fact, validCandidate(), nil
}

// mockFactRepo is an in-memory FactRepository.
type mockFactRepo struct {
	mu    sync.Mutex
	facts map[uuid.UUID]*models.Fact

	UpsertCalls      []repositories.UpsertFactInput
	DistractorResult []*models.Fact
	UpsertErr        error
}

func newMockFactRepo() *mockFactRepo {
	return &mockFactRepo{facts: make(map[uuid.UUID]*models.Fact)}
}

var _ repositories.FactRepository = (*mockFactRepo)(nil)

func (m *mockFactRepo) Upsert(ctx context.Context, input *repositories.UpsertFactInput) (*models.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls = append(m.UpsertCalls, *input)
	if m.UpsertErr != nil {
		return nil, m.UpsertErr
	}

	for _, f := range m.facts {
		if f.Subject == input.Subject && f.Action == input.Action && f.Object == input.Object && f.SourceID == input.SourceID {
			if len(input.ContextSentences) > 0 {
				f.ContextSentences = input.ContextSentences
			}
			f.SchemaValid = input.SchemaValid
			if input.Status != "" {
				f.Status = input.Status
			}
			return f, nil
		}
	}

	status := input.Status
	if status == "" {
		status = models.FactStatusPending
	}
	fact := &models.Fact{
		ID:               uuid.New(),
		Subject:          input.Subject,
		Action:           input.Action,
		Object:           input.Object,
		Relation:         input.Relation,
		SourceID:         input.SourceID,
		ContextSentences: input.ContextSentences,
		SchemaValid:      input.SchemaValid,
		Status:           status,
	}
	m.facts[fact.ID] = fact
	return fact, nil
}

func (m *mockFactRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.facts[id]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("fact %s: %w", id, apperrors.ErrNotFound)
}

func (m *mockFactRepo) ListAccepted(ctx context.Context, sourceID *uuid.UUID) ([]*models.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Fact
	for _, f := range m.facts {
		if !f.IsAccepted() {
			continue
		}
		if sourceID != nil && f.SourceID != *sourceID {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (m *mockFactRepo) ListByStatus(ctx context.Context, status models.FactStatus, limit int) ([]*models.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Fact
	for _, f := range m.facts {
		if f.Status == status {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockFactRepo) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.Fact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Fact
	for _, f := range m.facts {
		if f.SourceID == sourceID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockFactRepo) QueryDistractors(ctx context.Context, q *repositories.DistractorQuery) ([]*models.Fact, error) {
	return m.DistractorResult, nil
}

func (m *mockFactRepo) SetStatus(ctx context.Context, id uuid.UUID, status models.FactStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.facts[id]
	if !ok {
		return false, nil
	}
	f.Status = status
	return true, nil
}

// mockCandidateRepo is an in-memory CandidateRepository.
type mockCandidateRepo struct {
	mu         sync.Mutex
	candidates map[uuid.UUID]*models.Candidate

	CreateCalls int
	UpdateCalls int
	UpdateErr   error
}

func newMockCandidateRepo() *mockCandidateRepo {
	return &mockCandidateRepo{candidates: make(map[uuid.UUID]*models.Candidate)}
}

var _ repositories.CandidateRepository = (*mockCandidateRepo)(nil)

func (m *mockCandidateRepo) Create(ctx context.Context, candidate *models.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	m.candidates[candidate.ID] = candidate
	return nil
}

func (m *mockCandidateRepo) Update(ctx context.Context, candidate *models.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.candidates[candidate.ID] = candidate
	return nil
}

func (m *mockCandidateRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.candidates[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("candidate %s: %w", id, apperrors.ErrNotFound)
}

func (m *mockCandidateRepo) ListByStatus(ctx context.Context, status models.CandidateStatus, limit int) ([]*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Candidate
	for _, c := range m.candidates {
		if c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCandidateRepo) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Candidate
	for _, c := range m.candidates {
		if c.SourceID != nil && *c.SourceID == sourceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockCandidateRepo) SetStatus(ctx context.Context, id uuid.UUID, status models.CandidateStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok {
		return false, nil
	}
	c.Status = status
	return true, nil
}

func (m *mockCandidateRepo) SetImage(ctx context.Context, id uuid.UUID, imageURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok {
		return fmt.Errorf("candidate %s: %w", id, apperrors.ErrNotFound)
	}
	c.ImageURL = &imageURL
	return nil
}

func (m *mockCandidateRepo) ClearImage(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.candidates[id]
	if !ok {
		return fmt.Errorf("candidate %s: %w", id, apperrors.ErrNotFound)
	}
	c.ImageURL = nil
	return nil
}

// mockSourceRepo is an in-memory SourceRepository.
type mockSourceRepo struct {
	mu      sync.Mutex
	sources map[uuid.UUID]*models.Source

	CreateCalls int
}

func newMockSourceRepo() *mockSourceRepo {
	return &mockSourceRepo{sources: make(map[uuid.UUID]*models.Source)}
}

var _ repositories.SourceRepository = (*mockSourceRepo)(nil)

func (m *mockSourceRepo) Create(ctx context.Context, source *models.Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	m.sources[source.ID] = source
	return nil
}

func (m *mockSourceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sources[id]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("source %s: %w", id, apperrors.ErrNotFound)
}

func (m *mockSourceRepo) GetByExternalID(ctx context.Context, externalID string) (*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources {
		if s.ExternalID == externalID {
			return s, nil
		}
	}
	return nil, nil
}

func (m *mockSourceRepo) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Source
	for _, s := range m.sources {
		if s.ParentID != nil && *s.ParentID == parentID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockSourceRepo) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[id]
	if !ok {
		return fmt.Errorf("source %s: %w", id, apperrors.ErrNotFound)
	}
	s.Content = content
	return nil
}

// mockPendingRepo is an in-memory PendingReviewRepository.
type mockPendingRepo struct {
	mu      sync.Mutex
	pending map[uuid.UUID]bool

	ClearCalls []uuid.UUID
}

func newMockPendingRepo() *mockPendingRepo {
	return &mockPendingRepo{pending: make(map[uuid.UUID]bool)}
}

var _ repositories.PendingReviewRepository = (*mockPendingRepo)(nil)

func (m *mockPendingRepo) Register(ctx context.Context, sourceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[sourceID] = true
	return nil
}

func (m *mockPendingRepo) Clear(ctx context.Context, sourceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls = append(m.ClearCalls, sourceID)
	delete(m.pending, sourceID)
	return nil
}

func (m *mockPendingRepo) List(ctx context.Context, limit int) ([]*models.PendingReview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.PendingReview
	for id := range m.pending {
		out = append(out, &models.PendingReview{ID: uuid.New(), SourceID: id})
	}
	return out, nil
}

func (m *mockPendingRepo) IsPending(ctx context.Context, sourceID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending[sourceID], nil
}

// mockFetcher is a LiteratureFetcher returning a canned article.
type mockFetcher struct {
	Article *pubmed.Article
	Err     error
	Calls   int
}

func (m *mockFetcher) FetchOne(ctx context.Context, id string) (*pubmed.Article, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Article, nil
}

// validCandidate returns a shape-correct candidate for tests.
func validCandidate() *models.Candidate {
	return &models.Candidate{
		ID:       uuid.New(),
		Stem:     "A 52-year-old presents with polyuria and fatigue.",
		Question: "Which drug is first-line for this patient?",
		Options: []string{
			"Metformin",
			"Insulin glargine",
			"Glipizide",
			"Empagliflozin",
			"Sitagliptin",
		},
		CorrectOption: 0,
		Status:        models.CandidateStatusPending,
	}
}
