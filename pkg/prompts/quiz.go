// Package prompts builds the LLM prompts used by the question pipeline and
// the refinement loop. Prompts are configuration data: they carry the JSON
// contract the adapter parses against, but no control flow.
package prompts

import (
	"fmt"
	"strings"
)

// Content limits keep prompts inside provider context windows. Generation
// sees more of the source than refinement, which already carries a draft.
const (
	GenerationContentLimit = 8000
	RefinementContentLimit = 6000
)

// ApprovalToken is the literal verdict the critic returns when a candidate
// needs no further refinement. Checked case-sensitively after fence stripping.
const ApprovalToken = "APPROVED"

// RelationDoc describes one vocabulary relation for prompt context.
type RelationDoc struct {
	ID          string
	Description string
}

// FactContext provides fact details for generation prompts.
type FactContext struct {
	Subject          string
	Action           string
	Object           string
	Relation         string
	ContextSentences []string
}

// CandidateContext provides candidate details for critique and refinement prompts.
type CandidateContext struct {
	Stem          string
	Question      string
	Options       []string
	CorrectOption int
	VisualPrompt  string
}

// candidateShape is the JSON contract every generation and refinement prompt
// demands from the model.
const candidateShape = `{
  "stem": "clinical vignette introducing the scenario",
  "question": "the question being asked",
  "options": ["option A", "option B", "option C", "option D", "option E"],
  "correct_option": 0
}`

// BuildExtractionPrompt asks the model for subject/action/object assertions
// backed by verbatim sentences from the source.
func BuildExtractionPrompt(title, content string, relations []RelationDoc) string {
	var prompt strings.Builder

	prompt.WriteString("# Fact Extraction\n\n")
	prompt.WriteString("Extract factual subject/action/object assertions from the source text below.\n\n")

	prompt.WriteString("## Relation Vocabulary\n\n")
	prompt.WriteString("Tag each assertion with exactly one of these relations:\n\n")
	for _, r := range relations {
		prompt.WriteString(fmt.Sprintf("- %s: %s\n", r.ID, r.Description))
	}
	prompt.WriteString("\n")

	prompt.WriteString("## Source\n\n")
	if title != "" {
		prompt.WriteString(fmt.Sprintf("Title: %s\n\n", title))
	}
	prompt.WriteString(Truncate(content, GenerationContentLimit))
	prompt.WriteString("\n\n")

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Only extract assertions the text states directly; no outside knowledge.\n")
	prompt.WriteString("- context_sentences must be 2-4 sentences copied verbatim from the source.\n")
	prompt.WriteString("- Return an empty facts array if the text contains no extractable assertion.\n\n")

	prompt.WriteString("Respond with JSON:\n\n```json\n")
	prompt.WriteString(`{
  "facts": [
    {
      "subject": "Metformin",
      "action": "reduces",
      "object": "HbA1c",
      "relation": "TREATS",
      "context_sentences": ["sentence one.", "sentence two."]
    }
  ]
}`)
	prompt.WriteString("\n```\n\nReturn ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildExtractionSystemMessage returns the system message for fact extraction.
func BuildExtractionSystemMessage() string {
	return `You are a biomedical knowledge extraction expert. You identify precise, verifiable assertions in literature and tag them against a closed relation vocabulary.`
}

// BuildGenerationPrompt asks the model for a five-option MCQ grounded in the
// given fact, with distractor material drawn from competing accepted facts.
func BuildGenerationPrompt(fact FactContext, distractors []FactContext, sourceContent string) string {
	var prompt strings.Builder

	prompt.WriteString("# Question Generation\n\n")
	prompt.WriteString("Write a clinical multiple-choice question testing the fact below.\n\n")

	prompt.WriteString("## Fact Under Test\n\n")
	writeFact(&prompt, fact)

	if len(distractors) > 0 {
		prompt.WriteString("## Distractor Material\n\n")
		prompt.WriteString("Related accepted facts; use them to write plausible-but-wrong options:\n\n")
		for _, d := range distractors {
			prompt.WriteString(fmt.Sprintf("- %s %s %s [%s]\n", d.Subject, d.Action, d.Object, d.Relation))
		}
		prompt.WriteString("\n")
	}

	if sourceContent != "" {
		prompt.WriteString("## Source Context\n\n")
		prompt.WriteString(Truncate(sourceContent, GenerationContentLimit))
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Exactly 5 options; exactly one is correct.\n")
	prompt.WriteString("- correct_option is the zero-based index of the correct option.\n")
	prompt.WriteString("- Wrong options must be plausible to a student who misremembers the fact.\n\n")

	prompt.WriteString("Respond with JSON:\n\n```json\n")
	prompt.WriteString(candidateShape)
	prompt.WriteString("\n```\n\nReturn ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildGenerationSystemMessage returns the system message for MCQ generation.
func BuildGenerationSystemMessage() string {
	return `You are a medical educator writing board-style multiple-choice questions. Every question has exactly five options and exactly one correct answer grounded in the supplied fact.`
}

// BuildCritiquePrompt asks the critic for a verdict on a draft candidate.
// The critic answers with the approval token or concrete improvement guidance.
func BuildCritiquePrompt(candidate CandidateContext, feedback string) string {
	var prompt strings.Builder

	prompt.WriteString("# Question Critique\n\n")
	prompt.WriteString("Review the draft question below.\n\n")
	writeCandidate(&prompt, candidate)

	if feedback != "" {
		prompt.WriteString("## Reviewer Feedback\n\n")
		prompt.WriteString(feedback)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("## Verdict\n\n")
	prompt.WriteString(fmt.Sprintf(
		"If the question is accurate, unambiguous, and the reviewer feedback (if any) is fully addressed, reply with exactly %s and nothing else.\n", ApprovalToken))
	prompt.WriteString("Otherwise reply with specific, actionable improvement guidance in plain text.\n")

	return prompt.String()
}

// BuildCritiqueSystemMessage returns the system message for the critic.
func BuildCritiqueSystemMessage() string {
	return `You are an exacting medical question reviewer. You approve only questions that are factually correct, unambiguous, and free of option flaws such as giveaway lengths or overlapping answers.`
}

// BuildRefinePrompt asks the model to improve a draft according to critique.
func BuildRefinePrompt(sourceContent string, candidate CandidateContext, critique string) string {
	var prompt strings.Builder

	prompt.WriteString("# Question Refinement\n\n")
	prompt.WriteString("Improve the draft question according to the critique.\n\n")
	writeCandidate(&prompt, candidate)

	prompt.WriteString("## Critique\n\n")
	prompt.WriteString(critique)
	prompt.WriteString("\n\n")

	if sourceContent != "" {
		prompt.WriteString("## Source Context\n\n")
		prompt.WriteString(Truncate(sourceContent, RefinementContentLimit))
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("Keep what the critique does not object to. ")
	prompt.WriteString("Respond with the full improved question as JSON:\n\n```json\n")
	prompt.WriteString(candidateShape)
	prompt.WriteString("\n```\n\nReturn ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildFeedbackPrompt is the non-iterative fallback: apply reviewer feedback
// directly to a draft in a single generation call.
func BuildFeedbackPrompt(sourceContent string, candidate CandidateContext, feedback string) string {
	var prompt strings.Builder

	prompt.WriteString("# Question Update\n\n")
	prompt.WriteString("Rewrite the question below applying the reviewer's feedback.\n\n")
	writeCandidate(&prompt, candidate)

	prompt.WriteString("## Reviewer Feedback\n\n")
	prompt.WriteString(feedback)
	prompt.WriteString("\n\n")

	if sourceContent != "" {
		prompt.WriteString("## Source Context\n\n")
		prompt.WriteString(Truncate(sourceContent, RefinementContentLimit))
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("Respond with the full updated question as JSON:\n\n```json\n")
	prompt.WriteString(candidateShape)
	prompt.WriteString("\n```\n\nReturn ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildVisualPrompt asks for an illustration prompt plus the visual triplet
// describing what the image asserts.
func BuildVisualPrompt(candidate CandidateContext, fact FactContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Illustration Prompt\n\n")
	prompt.WriteString("Write an image-generation prompt illustrating the scenario of this question.\n\n")
	writeCandidate(&prompt, candidate)

	prompt.WriteString("## Underlying Fact\n\n")
	writeFact(&prompt, fact)

	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- The image must not reveal the correct answer.\n")
	prompt.WriteString("- visual_triplet restates what the image depicts as subject/action/object with a relation from the same vocabulary as the fact.\n\n")

	prompt.WriteString("Respond with JSON:\n\n```json\n")
	prompt.WriteString(`{
  "visual_prompt": "detailed illustration prompt",
  "visual_triplet": {
    "subject": "...",
    "action": "...",
    "object": "...",
    "relation": "TREATS"
  }
}`)
	prompt.WriteString("\n```\n\nReturn ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// BuildFallbackPrompt synthesizes one fact and one question when extraction
// found nothing, so a reviewer always receives something to act on.
func BuildFallbackPrompt(title, content string, relations []RelationDoc) string {
	var prompt strings.Builder

	prompt.WriteString("# Fallback Question\n\n")
	prompt.WriteString("Automatic extraction found no assertions in the source below. ")
	prompt.WriteString("Synthesize ONE defensible fact from the text and ONE question testing it.\n\n")

	prompt.WriteString("## Relation Vocabulary\n\n")
	for _, r := range relations {
		prompt.WriteString(fmt.Sprintf("- %s: %s\n", r.ID, r.Description))
	}
	prompt.WriteString("\n## Source\n\n")
	if title != "" {
		prompt.WriteString(fmt.Sprintf("Title: %s\n\n", title))
	}
	prompt.WriteString(Truncate(content, GenerationContentLimit))
	prompt.WriteString("\n\n")

	prompt.WriteString("Respond with JSON:\n\n```json\n")
	prompt.WriteString(`{
  "fact": {
    "subject": "...",
    "action": "...",
    "object": "...",
    "relation": "ASSOCIATED_WITH",
    "context_sentences": ["sentence one.", "sentence two."]
  },
  "candidate": ` + indent(candidateShape, "  ") + `
}`)
	prompt.WriteString("\n```\n\nReturn ONLY the JSON, no additional text.\n")

	return prompt.String()
}

// Truncate bounds text to limit characters, marking the cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	return s[:limit] + "\n[... truncated ...]"
}

func writeFact(prompt *strings.Builder, fact FactContext) {
	prompt.WriteString(fmt.Sprintf("%s %s %s [%s]\n\n", fact.Subject, fact.Action, fact.Object, fact.Relation))
	if len(fact.ContextSentences) > 0 {
		prompt.WriteString("Supporting sentences:\n")
		for _, s := range fact.ContextSentences {
			prompt.WriteString(fmt.Sprintf("- %s\n", s))
		}
		prompt.WriteString("\n")
	}
}

func writeCandidate(prompt *strings.Builder, c CandidateContext) {
	prompt.WriteString("## Draft\n\n")
	if c.Stem != "" {
		prompt.WriteString(fmt.Sprintf("Stem: %s\n", c.Stem))
	}
	prompt.WriteString(fmt.Sprintf("Question: %s\n", c.Question))
	for i, opt := range c.Options {
		marker := " "
		if i == c.CorrectOption {
			marker = "*"
		}
		prompt.WriteString(fmt.Sprintf("%s %c) %s\n", marker, 'A'+i, opt))
	}
	if c.VisualPrompt != "" {
		prompt.WriteString(fmt.Sprintf("Visual prompt: %s\n", c.VisualPrompt))
	}
	prompt.WriteString("\n")
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = prefix + lines[i]
	}
	return strings.Join(lines, "\n")
}
