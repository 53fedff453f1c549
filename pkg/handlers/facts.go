package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/apperrors"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/services"
)

// PendingFactsResponse for GET /api/facts/pending
type PendingFactsResponse struct {
	Facts []*services.PendingFact `json:"facts"`
	Total int                     `json:"total"`
}

// SetFactStatusRequest for POST /api/facts/{fid}/status
type SetFactStatusRequest struct {
	Status models.FactStatus `json:"status"`
}

// GenerateCandidateRequest for POST /api/facts/{fid}/generate
type GenerateCandidateRequest struct {
	ModelID string `json:"model_id,omitempty"`
}

// FactsHandler handles the fact review endpoints.
type FactsHandler struct {
	review services.ReviewService
	logger *zap.Logger
}

// NewFactsHandler creates a new facts handler.
func NewFactsHandler(review services.ReviewService, logger *zap.Logger) *FactsHandler {
	return &FactsHandler{review: review, logger: logger}
}

// RegisterRoutes registers the facts handler's routes on the given mux.
func (h *FactsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/facts/pending", h.ListPending)
	mux.HandleFunc("POST /api/facts/{fid}/status", h.SetStatus)
	mux.HandleFunc("POST /api/facts/{fid}/generate", h.Generate)
}

// ListPending handles GET /api/facts/pending?limit=...
func (h *FactsHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		limit = parsed
	}

	facts, err := h.review.ListPendingFacts(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list pending facts", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_pending_facts_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := PendingFactsResponse{Facts: facts, Total: len(facts)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SetStatus handles POST /api/facts/{fid}/status
func (h *FactsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	factID, ok := ParseFactID(w, r, h.logger)
	if !ok {
		return
	}

	var req SetFactStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.review.SetFactStatus(r.Context(), factID, req.Status); err != nil {
		if errors.Is(err, apperrors.ErrInvalidStatus) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_status", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "fact_not_found", "Fact not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to set fact status",
			zap.String("fact_id", factID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "set_fact_status_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"status": string(req.Status)}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Generate handles POST /api/facts/{fid}/generate.
// Writes a new pending candidate that tests the fact.
func (h *FactsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	factID, ok := ParseFactID(w, r, h.logger)
	if !ok {
		return
	}

	var req GenerateCandidateRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	candidate, err := h.review.GenerateFromFact(r.Context(), factID, req.ModelID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "fact_not_found", "Fact not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrInvalidStatus) {
			if err := ErrorResponse(w, http.StatusBadRequest, "fact_not_accepted", "Questions can only be generated from accepted facts"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to generate candidate from fact",
			zap.String("fact_id", factID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "generate_candidate_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: candidate}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
