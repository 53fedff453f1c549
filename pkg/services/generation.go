package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/jsonutil"
	"github.com/medquiz-ai/medquiz-engine/pkg/llm"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/prompts"
	"github.com/medquiz-ai/medquiz-engine/pkg/vocab"
)

// ExtractedFact is one subject/action/object assertion as returned by the
// generator, before reconciliation against the knowledge base.
type ExtractedFact struct {
	Subject          string   `json:"subject"`
	Action           string   `json:"action"`
	Object           string   `json:"object"`
	Relation         string   `json:"relation"`
	ContextSentences []string `json:"context_sentences,omitempty"`
}

// VisualElaboration is an illustration prompt plus the triplet describing
// what the image asserts, with its vocabulary validation result.
type VisualElaboration struct {
	Prompt     string        `json:"visual_prompt"`
	Triplet    ExtractedFact `json:"visual_triplet"`
	Validation vocab.Result  `json:"validation"`
}

// GeneratorService is the capability boundary over the LLM backends. Every
// method that produces a candidate enforces the candidate shape (exactly
// five options, correct index in range, non-empty question); payloads that
// fail the shape are a malformed-output error and never cross the boundary.
type GeneratorService interface {
	// ExtractFacts prompts for assertions in the source text. An empty slice
	// with a nil error means the text contains no extractable assertion.
	ExtractFacts(ctx context.Context, run RunConfig, source *models.Source) ([]ExtractedFact, error)

	// GenerateCandidate writes a five-option question testing the fact,
	// using the distractor facts as plausible-but-wrong option material.
	// The returned candidate is not persisted.
	GenerateCandidate(ctx context.Context, run RunConfig, source *models.Source, fact *models.Fact, distractors []*models.Fact) (*models.Candidate, error)

	// Critique asks the critic for a verdict on a draft. The returned text
	// is fence-stripped and trimmed; callers compare it against the
	// approval sentinel.
	Critique(ctx context.Context, run RunConfig, candidate *models.Candidate, feedback string) (string, error)

	// RefineCandidate rewrites the draft according to the critique. The
	// returned candidate keeps the draft's identity and provenance.
	RefineCandidate(ctx context.Context, run RunConfig, sourceContent string, candidate *models.Candidate, critique string) (*models.Candidate, error)

	// ApplyFeedback is the non-iterative fallback path: apply reviewer
	// feedback to a draft in a single generation call.
	ApplyFeedback(ctx context.Context, run RunConfig, sourceContent string, candidate *models.Candidate, feedback string) (*models.Candidate, error)

	// ElaborateVisual produces an illustration prompt and visual triplet for
	// the candidate. The triplet's relation is validated against the
	// vocabulary; an invalid relation is recorded, not an error.
	ElaborateVisual(ctx context.Context, run RunConfig, candidate *models.Candidate, fact *models.Fact) (*VisualElaboration, error)

	// GenerateFallback synthesizes one fact and one candidate when
	// extraction found nothing.
	GenerateFallback(ctx context.Context, run RunConfig, source *models.Source) (*ExtractedFact, *models.Candidate, error)
}

type generatorService struct {
	vocabulary *vocab.Vocabulary
	logger     *zap.Logger
}

// NewGeneratorService creates the generator capability service.
func NewGeneratorService(vocabulary *vocab.Vocabulary, logger *zap.Logger) GeneratorService {
	return &generatorService{
		vocabulary: vocabulary,
		logger:     logger.Named("generator"),
	}
}

var _ GeneratorService = (*generatorService)(nil)

// factsPayload is the extraction response contract. Raw fields tolerate
// models returning numbers where strings belong.
type factsPayload struct {
	Facts []factPayload `json:"facts"`
}

type factPayload struct {
	Subject          json.RawMessage `json:"subject"`
	Action           json.RawMessage `json:"action"`
	Object           json.RawMessage `json:"object"`
	Relation         json.RawMessage `json:"relation"`
	ContextSentences json.RawMessage `json:"context_sentences"`
}

func (p *factPayload) toExtracted() (ExtractedFact, error) {
	fact := ExtractedFact{
		Subject:  strings.TrimSpace(jsonutil.FlexibleStringValue(p.Subject)),
		Action:   strings.TrimSpace(jsonutil.FlexibleStringValue(p.Action)),
		Object:   strings.TrimSpace(jsonutil.FlexibleStringValue(p.Object)),
		Relation: strings.TrimSpace(jsonutil.FlexibleStringValue(p.Relation)),
	}
	if fact.Subject == "" || fact.Action == "" || fact.Object == "" {
		return fact, fmt.Errorf("assertion missing subject, action, or object")
	}

	sentences, err := jsonutil.FlexibleStringSlice(p.ContextSentences)
	if err != nil {
		return fact, fmt.Errorf("context_sentences: %w", err)
	}
	fact.ContextSentences = sentences
	return fact, nil
}

func (s *generatorService) ExtractFacts(ctx context.Context, run RunConfig, source *models.Source) ([]ExtractedFact, error) {
	result, err := run.Client.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompts.BuildExtractionPrompt(source.DisplayTitle(), source.Content, s.relationDocs()),
		System:      prompts.BuildExtractionSystemMessage(),
		Temperature: run.Temperature,
		MaxTokens:   run.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	payload, err := llm.ParseJSONResponse[factsPayload](result.Content)
	if err != nil {
		return nil, err
	}

	facts := make([]ExtractedFact, 0, len(payload.Facts))
	for i := range payload.Facts {
		fact, err := payload.Facts[i].toExtracted()
		if err != nil {
			// Drop the one bad entry rather than discarding the batch.
			s.logger.Warn("skipping malformed extracted assertion",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		facts = append(facts, fact)
	}

	s.logger.Info("fact extraction completed",
		zap.String("source", source.ExternalID),
		zap.Int("extracted", len(facts)))

	return facts, nil
}

// candidatePayload is the generation/refinement response contract.
type candidatePayload struct {
	Stem          json.RawMessage `json:"stem"`
	Question      json.RawMessage `json:"question"`
	Options       json.RawMessage `json:"options"`
	CorrectOption json.RawMessage `json:"correct_option"`
}

// parseCandidate decodes a generation response and enforces the candidate
// shape. Any violation comes back as a malformed-output error.
func parseCandidate(content string) (*models.Candidate, error) {
	payload, err := llm.ParseJSONResponse[candidatePayload](content)
	if err != nil {
		return nil, err
	}

	options, err := jsonutil.FlexibleStringSlice(payload.Options)
	if err != nil {
		return nil, llm.NewError(llm.ErrorTypeMalformed,
			fmt.Sprintf("options field: %v", err), false, err)
	}
	correct, err := jsonutil.FlexibleIntValue(payload.CorrectOption)
	if err != nil {
		return nil, llm.NewError(llm.ErrorTypeMalformed,
			fmt.Sprintf("correct_option field: %v", err), false, err)
	}

	candidate := &models.Candidate{
		Stem:          strings.TrimSpace(jsonutil.FlexibleStringValue(payload.Stem)),
		Question:      strings.TrimSpace(jsonutil.FlexibleStringValue(payload.Question)),
		Options:       options,
		CorrectOption: correct,
		Status:        models.CandidateStatusPending,
	}
	if err := candidate.Validate(); err != nil {
		return nil, llm.NewError(llm.ErrorTypeMalformed,
			fmt.Sprintf("candidate shape: %v", err), false, err)
	}
	return candidate, nil
}

func (s *generatorService) GenerateCandidate(ctx context.Context, run RunConfig, source *models.Source, fact *models.Fact, distractors []*models.Fact) (*models.Candidate, error) {
	distractorContexts := make([]prompts.FactContext, 0, len(distractors))
	for _, d := range distractors {
		distractorContexts = append(distractorContexts, factContext(d))
	}

	result, err := run.Client.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompts.BuildGenerationPrompt(factContext(fact), distractorContexts, source.Content),
		System:      prompts.BuildGenerationSystemMessage(),
		Temperature: run.Temperature,
		MaxTokens:   run.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	candidate, err := parseCandidate(result.Content)
	if err != nil {
		return nil, err
	}

	candidate.SourceID = &fact.SourceID
	factID := fact.ID
	candidate.FactID = &factID

	s.logger.Info("candidate generated",
		zap.String("fact", fact.Statement()),
		zap.Int("distractors", len(distractors)))

	return candidate, nil
}

func (s *generatorService) Critique(ctx context.Context, run RunConfig, candidate *models.Candidate, feedback string) (string, error) {
	result, err := run.Client.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompts.BuildCritiquePrompt(candidateContext(candidate), feedback),
		System:      prompts.BuildCritiqueSystemMessage(),
		Temperature: run.Temperature,
		MaxTokens:   run.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(llm.StripFences(result.Content)), nil
}

func (s *generatorService) RefineCandidate(ctx context.Context, run RunConfig, sourceContent string, candidate *models.Candidate, critique string) (*models.Candidate, error) {
	result, err := run.Client.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompts.BuildRefinePrompt(sourceContent, candidateContext(candidate), critique),
		System:      prompts.BuildGenerationSystemMessage(),
		Temperature: run.Temperature,
		MaxTokens:   run.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	refined, err := parseCandidate(result.Content)
	if err != nil {
		return nil, err
	}
	return carryIdentity(candidate, refined), nil
}

func (s *generatorService) ApplyFeedback(ctx context.Context, run RunConfig, sourceContent string, candidate *models.Candidate, feedback string) (*models.Candidate, error) {
	result, err := run.Client.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompts.BuildFeedbackPrompt(sourceContent, candidateContext(candidate), feedback),
		System:      prompts.BuildGenerationSystemMessage(),
		Temperature: run.Temperature,
		MaxTokens:   run.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	updated, err := parseCandidate(result.Content)
	if err != nil {
		return nil, err
	}
	return carryIdentity(candidate, updated), nil
}

// visualPayload is the illustration response contract.
type visualPayload struct {
	VisualPrompt  json.RawMessage `json:"visual_prompt"`
	VisualTriplet factPayload     `json:"visual_triplet"`
}

func (s *generatorService) ElaborateVisual(ctx context.Context, run RunConfig, candidate *models.Candidate, fact *models.Fact) (*VisualElaboration, error) {
	result, err := run.Client.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompts.BuildVisualPrompt(candidateContext(candidate), factContext(fact)),
		System:      prompts.BuildGenerationSystemMessage(),
		Temperature: run.Temperature,
		MaxTokens:   run.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, err
	}

	payload, err := llm.ParseJSONResponse[visualPayload](result.Content)
	if err != nil {
		return nil, err
	}

	promptText := strings.TrimSpace(jsonutil.FlexibleStringValue(payload.VisualPrompt))
	if promptText == "" {
		return nil, llm.NewError(llm.ErrorTypeMalformed, "visual_prompt is empty", false, nil)
	}

	triplet, err := payload.VisualTriplet.toExtracted()
	if err != nil {
		return nil, llm.NewError(llm.ErrorTypeMalformed,
			fmt.Sprintf("visual_triplet: %v", err), false, err)
	}

	elaboration := &VisualElaboration{
		Prompt:     promptText,
		Triplet:    triplet,
		Validation: s.vocabulary.Validate(triplet.Relation),
	}
	if !elaboration.Validation.Valid {
		s.logger.Warn("visual triplet relation failed validation",
			zap.String("relation", triplet.Relation),
			zap.Strings("errors", elaboration.Validation.Errors))
	}

	return elaboration, nil
}

// fallbackPayload is the zero-fact response contract.
type fallbackPayload struct {
	Fact      factPayload      `json:"fact"`
	Candidate candidatePayload `json:"candidate"`
}

func (s *generatorService) GenerateFallback(ctx context.Context, run RunConfig, source *models.Source) (*ExtractedFact, *models.Candidate, error) {
	result, err := run.Client.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompts.BuildFallbackPrompt(source.DisplayTitle(), source.Content, s.relationDocs()),
		System:      prompts.BuildGenerationSystemMessage(),
		Temperature: run.Temperature,
		MaxTokens:   run.MaxTokens,
		JSONMode:    true,
	})
	if err != nil {
		return nil, nil, err
	}

	payload, err := llm.ParseJSONResponse[fallbackPayload](result.Content)
	if err != nil {
		return nil, nil, err
	}

	fact, err := payload.Fact.toExtracted()
	if err != nil {
		return nil, nil, llm.NewError(llm.ErrorTypeMalformed,
			fmt.Sprintf("fallback fact: %v", err), false, err)
	}

	raw, err := json.Marshal(payload.Candidate)
	if err != nil {
		return nil, nil, fmt.Errorf("re-encode fallback candidate: %w", err)
	}
	candidate, err := parseCandidate(string(raw))
	if err != nil {
		return nil, nil, err
	}
	candidate.SourceID = &source.ID

	s.logger.Info("fallback question synthesized",
		zap.String("source", source.ExternalID),
		zap.String("fact", fact.Subject+" "+fact.Action+" "+fact.Object))

	return &fact, candidate, nil
}

// relationDocs renders the enabled vocabulary for prompt context.
func (s *generatorService) relationDocs() []prompts.RelationDoc {
	ids := s.vocabulary.EnabledRelations()
	docs := make([]prompts.RelationDoc, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, prompts.RelationDoc{ID: id, Description: s.vocabulary.Describe(id)})
	}
	return docs
}

func factContext(f *models.Fact) prompts.FactContext {
	return prompts.FactContext{
		Subject:          f.Subject,
		Action:           f.Action,
		Object:           f.Object,
		Relation:         f.Relation,
		ContextSentences: f.ContextSentences,
	}
}

func candidateContext(c *models.Candidate) prompts.CandidateContext {
	return prompts.CandidateContext{
		Stem:          c.Stem,
		Question:      c.Question,
		Options:       c.Options,
		CorrectOption: c.CorrectOption,
		VisualPrompt:  c.VisualPrompt,
	}
}

// carryIdentity copies identity, provenance, and visual material from the
// prior draft onto a regenerated one. Refinement mutates content, never
// provenance.
func carryIdentity(prior, next *models.Candidate) *models.Candidate {
	next.ID = prior.ID
	next.SourceID = prior.SourceID
	next.FactID = prior.FactID
	next.VisualPrompt = prior.VisualPrompt
	next.VisualTriplet = prior.VisualTriplet
	next.ImageURL = prior.ImageURL
	next.Status = prior.Status
	next.CreatedAt = prior.CreatedAt
	return next
}
