// Package tools provides MCP tool implementations for medquiz-engine.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/apperrors"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/pubmed"
	"github.com/medquiz-ai/medquiz-engine/pkg/services"
)

// LiteratureClient is the slice of the PubMed client the search tool needs.
type LiteratureClient interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Fetch(ctx context.Context, ids []string) ([]pubmed.Article, error)
}

// ReviewToolDeps contains dependencies for the review and pipeline tools.
type ReviewToolDeps struct {
	Review     services.ReviewService
	Pipeline   services.PipelineService
	Literature LiteratureClient
	Logger     *zap.Logger
}

// RegisterReviewTools registers the question review MCP tools.
func RegisterReviewTools(s *server.MCPServer, deps *ReviewToolDeps) {
	registerListPendingFactsTool(s, deps)
	registerReviewFactTool(s, deps)
	registerGenerateQuestionTool(s, deps)
	registerRefineQuestionTool(s, deps)
	registerRunPipelineTool(s, deps)
	registerSearchLiteratureTool(s, deps)
}

func registerListPendingFactsTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"list_pending_facts",
		mcp.WithDescription(
			"List extracted medical facts awaiting review, newest first, with the source "+
				"text they came from. Each fact is a subject-action-object triplet with a "+
				"relation tag and schema validity flag. "+
				"Example: list_pending_facts(limit=10).",
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Optional - Maximum number of facts to return (default 20)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := getOptionalInt(req, "limit", 20)

		facts, err := deps.Review.ListPendingFacts(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending facts: %w", err)
		}

		result, err := json.Marshal(map[string]any{"facts": facts, "total": len(facts)})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pending facts: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}

func registerReviewFactTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"review_fact",
		mcp.WithDescription(
			"Record a review decision on an extracted fact. Accepted facts become "+
				"eligible as gating facts and distractor material for question generation. "+
				"Example: review_fact(fact_id='...', status='accepted').",
		),
		mcp.WithString(
			"fact_id",
			mcp.Required(),
			mcp.Description("UUID of the fact to review"),
		),
		mcp.WithString(
			"status",
			mcp.Required(),
			mcp.Description("Decision: 'accepted' or 'rejected' (or 'pending' to requeue)"),
		),
		mcp.WithIdempotentHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		factIDStr, err := req.RequireString("fact_id")
		if err != nil {
			return nil, err
		}
		statusStr, err := req.RequireString("status")
		if err != nil {
			return nil, err
		}

		factID, err := uuid.Parse(factIDStr)
		if err != nil {
			return NewErrorResult("invalid_fact_id", fmt.Sprintf("'%s' is not a valid UUID", factIDStr)), nil
		}

		status := models.FactStatus(statusStr)
		if err := deps.Review.SetFactStatus(ctx, factID, status); err != nil {
			if errors.Is(err, apperrors.ErrInvalidStatus) {
				return NewErrorResult("invalid_status",
					fmt.Sprintf("'%s' is not a valid status (use accepted, rejected, or pending)", statusStr)), nil
			}
			if errors.Is(err, apperrors.ErrNotFound) {
				return NewErrorResult("fact_not_found", fmt.Sprintf("no fact with id %s", factID)), nil
			}
			return nil, fmt.Errorf("failed to set fact status: %w", err)
		}

		result, _ := json.Marshal(map[string]string{"fact_id": factID.String(), "status": statusStr})
		return mcp.NewToolResultText(string(result)), nil
	})
}

func registerGenerateQuestionTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"generate_question",
		mcp.WithDescription(
			"Generate a new five-option multiple-choice question testing a reviewed fact, "+
				"using accepted facts from the knowledge base as distractor material. The "+
				"question is persisted as a pending candidate. "+
				"Example: generate_question(fact_id='...').",
		),
		mcp.WithString(
			"fact_id",
			mcp.Required(),
			mcp.Description("UUID of the fact the question should test"),
		),
		mcp.WithString(
			"model",
			mcp.Description("Optional - model identifier; omit for the configured default"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		factIDStr, err := req.RequireString("fact_id")
		if err != nil {
			return nil, err
		}
		factID, err := uuid.Parse(factIDStr)
		if err != nil {
			return NewErrorResult("invalid_fact_id", fmt.Sprintf("'%s' is not a valid UUID", factIDStr)), nil
		}

		candidate, err := deps.Review.GenerateFromFact(ctx, factID, getOptionalString(req, "model"))
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return NewErrorResult("fact_not_found", fmt.Sprintf("no fact with id %s", factID)), nil
			}
			if errors.Is(err, apperrors.ErrInvalidStatus) {
				return NewErrorResult("fact_not_accepted",
					fmt.Sprintf("fact %s has not been accepted; review it first", factID)), nil
			}
			return nil, fmt.Errorf("failed to generate question: %w", err)
		}

		result, err := json.Marshal(candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal candidate: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}

func registerRefineQuestionTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"refine_question",
		mcp.WithDescription(
			"Run the critique/refine loop over a question candidate with reviewer "+
				"feedback. Returns the refined candidate and the loop outcome "+
				"(approved, iteration_exhausted, step_failed, or feedback_fallback). "+
				"Example: refine_question(candidate_id='...', feedback='distractors too easy').",
		),
		mcp.WithString(
			"candidate_id",
			mcp.Required(),
			mcp.Description("UUID of the candidate to refine"),
		),
		mcp.WithString(
			"feedback",
			mcp.Required(),
			mcp.Description("Reviewer feedback guiding the refinement"),
		),
		mcp.WithString(
			"model",
			mcp.Description("Optional - model identifier; omit for the configured default"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		candidateIDStr, err := req.RequireString("candidate_id")
		if err != nil {
			return nil, err
		}
		feedback, err := req.RequireString("feedback")
		if err != nil {
			return nil, err
		}

		candidateID, err := uuid.Parse(candidateIDStr)
		if err != nil {
			return NewErrorResult("invalid_candidate_id", fmt.Sprintf("'%s' is not a valid UUID", candidateIDStr)), nil
		}

		result, err := deps.Review.RequestUpdate(ctx, candidateID, feedback, getOptionalString(req, "model"))
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				return NewErrorResult("candidate_not_found", fmt.Sprintf("no candidate with id %s", candidateID)), nil
			}
			return nil, fmt.Errorf("failed to refine question: %w", err)
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal refinement result: %w", err)
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
}

func registerRunPipelineTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"run_pipeline",
		mcp.WithDescription(
			"Run the full question pipeline over a source: ingest, extract facts, "+
				"reconcile them into the knowledge base, generate a candidate question, "+
				"elaborate its visual prompt, and fall back to a self-contained question "+
				"when no facts were extracted. Stage failures surface as warnings in the "+
				"result, not as errors. Provide either source_ref (an existing source's "+
				"external id or a PubMed id like 'PMID:31978945') or raw text. "+
				"Example: run_pipeline(source_ref='PMID:31978945').",
		),
		mcp.WithString(
			"source_ref",
			mcp.Description("Existing source external id or PubMed id; omit when passing text"),
		),
		mcp.WithString(
			"text",
			mcp.Description("Raw source text to register and process; omit when passing source_ref"),
		),
		mcp.WithString(
			"title",
			mcp.Description("Optional - title for raw text sources"),
		),
		mcp.WithString(
			"model",
			mcp.Description("Optional - model identifier; omit for the configured default"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		request := services.PipelineRequest{
			SourceRef: getOptionalString(req, "source_ref"),
			Text:      getOptionalString(req, "text"),
			Title:     getOptionalString(req, "title"),
			ModelID:   getOptionalString(req, "model"),
		}
		if request.SourceRef == "" && request.Text == "" {
			return NewErrorResult("missing_input", "provide either source_ref or text"), nil
		}

		result, err := deps.Pipeline.Run(ctx, request)
		if err != nil {
			return NewErrorResult("pipeline_rejected", err.Error()), nil
		}

		payload, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal pipeline result: %w", err)
		}
		return mcp.NewToolResultText(string(payload)), nil
	})
}

func registerSearchLiteratureTool(s *server.MCPServer, deps *ReviewToolDeps) {
	tool := mcp.NewTool(
		"search_literature",
		mcp.WithDescription(
			"Search PubMed for articles matching a query and return their metadata "+
				"and abstracts. Returned PMIDs can be passed to run_pipeline as "+
				"'PMID:<id>' source references. "+
				"Example: search_literature(query='metformin cardiovascular outcomes', limit=5).",
		),
		mcp.WithString(
			"query",
			mcp.Required(),
			mcp.Description("PubMed search query"),
		),
		mcp.WithNumber(
			"limit",
			mcp.Description("Optional - Maximum number of articles to return (default 5)"),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(true),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return nil, err
		}
		limit := getOptionalInt(req, "limit", 5)

		ids, err := deps.Literature.Search(ctx, query, limit)
		if err != nil {
			return nil, fmt.Errorf("pubmed search failed: %w", err)
		}

		articles := []pubmed.Article{}
		if len(ids) > 0 {
			articles, err = deps.Literature.Fetch(ctx, ids)
			if err != nil {
				return nil, fmt.Errorf("pubmed fetch failed: %w", err)
			}
		}

		result, err := json.Marshal(map[string]any{"articles": articles, "total": len(articles)})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal articles: %w", err)
		}
		return mcp.NewToolResultText(string(result)), nil
	})
}
