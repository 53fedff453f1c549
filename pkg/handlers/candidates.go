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

// CandidateListResponse for GET /api/candidates
type CandidateListResponse struct {
	Candidates []*models.Candidate `json:"candidates"`
	Total      int                 `json:"total"`
}

// SetCandidateStatusRequest for POST /api/candidates/{cid}/status
type SetCandidateStatusRequest struct {
	Status models.CandidateStatus `json:"status"`
}

// RefineCandidateRequest for POST /api/candidates/{cid}/refine
type RefineCandidateRequest struct {
	Feedback string `json:"feedback"`
	ModelID  string `json:"model_id,omitempty"`
}

// AcceptImageRequest for POST /api/candidates/{cid}/image
type AcceptImageRequest struct {
	Size string `json:"size,omitempty"`
}

// CandidatesHandler handles the candidate review endpoints.
type CandidatesHandler struct {
	review services.ReviewService
	logger *zap.Logger
}

// NewCandidatesHandler creates a new candidates handler.
func NewCandidatesHandler(review services.ReviewService, logger *zap.Logger) *CandidatesHandler {
	return &CandidatesHandler{review: review, logger: logger}
}

// RegisterRoutes registers the candidates handler's routes on the given mux.
func (h *CandidatesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/candidates", h.List)
	mux.HandleFunc("POST /api/candidates/{cid}/status", h.SetStatus)
	mux.HandleFunc("POST /api/candidates/{cid}/refine", h.Refine)
	mux.HandleFunc("POST /api/candidates/{cid}/image", h.AcceptImage)
	mux.HandleFunc("DELETE /api/candidates/{cid}/image", h.RemoveImage)
}

// List handles GET /api/candidates?status=...&limit=...
func (h *CandidatesHandler) List(w http.ResponseWriter, r *http.Request) {
	status := models.CandidateStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.CandidateStatusPending
	}

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

	candidates, err := h.review.ListCandidates(r.Context(), status, limit)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidStatus) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_status", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to list candidates",
			zap.String("status", string(status)),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "list_candidates_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := CandidateListResponse{Candidates: candidates, Total: len(candidates)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SetStatus handles POST /api/candidates/{cid}/status
func (h *CandidatesHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := ParseCandidateID(w, r, h.logger)
	if !ok {
		return
	}

	var req SetCandidateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := h.review.SetCandidateStatus(r.Context(), candidateID, req.Status); err != nil {
		if errors.Is(err, apperrors.ErrInvalidStatus) {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_status", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "candidate_not_found", "Candidate not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to set candidate status",
			zap.String("candidate_id", candidateID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "set_candidate_status_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"status": string(req.Status)}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Refine handles POST /api/candidates/{cid}/refine.
// Runs the critique/refine loop over the candidate with reviewer feedback.
func (h *CandidatesHandler) Refine(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := ParseCandidateID(w, r, h.logger)
	if !ok {
		return
	}

	var req RefineCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.review.RequestUpdate(r.Context(), candidateID, req.Feedback, req.ModelID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "candidate_not_found", "Candidate not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to refine candidate",
			zap.String("candidate_id", candidateID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "refine_candidate_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// AcceptImage handles POST /api/candidates/{cid}/image.
// Renders the candidate's visual prompt and records the stored image.
func (h *CandidatesHandler) AcceptImage(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := ParseCandidateID(w, r, h.logger)
	if !ok {
		return
	}

	var req AcceptImageRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	candidate, err := h.review.AcceptImage(r.Context(), candidateID, req.Size)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			if err := ErrorResponse(w, http.StatusBadRequest, "no_visual_prompt", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "candidate_not_found", "Candidate not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to render candidate image",
			zap.String("candidate_id", candidateID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "render_image_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: candidate}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RemoveImage handles DELETE /api/candidates/{cid}/image
func (h *CandidatesHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	candidateID, ok := ParseCandidateID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.review.RemoveImage(r.Context(), candidateID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := ErrorResponse(w, http.StatusNotFound, "candidate_not_found", "Candidate not found"); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}

		h.logger.Error("Failed to remove candidate image",
			zap.String("candidate_id", candidateID.String()),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "remove_image_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"status": "removed"}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
