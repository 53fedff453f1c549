package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/llm"
	"github.com/medquiz-ai/medquiz-engine/pkg/services"
)

// ModelInfo describes one configured generation model.
type ModelInfo struct {
	Identifier string `json:"identifier"`
	Provider   string `json:"provider"`
	Default    bool   `json:"default"`
}

// ModelListResponse for GET /api/models
type ModelListResponse struct {
	Models []ModelInfo `json:"models"`
}

// PipelineHandler handles pipeline runs and model listing.
type PipelineHandler struct {
	pipeline services.PipelineService
	registry *llm.Registry
	logger   *zap.Logger
}

// NewPipelineHandler creates a new pipeline handler.
func NewPipelineHandler(pipeline services.PipelineService, registry *llm.Registry, logger *zap.Logger) *PipelineHandler {
	return &PipelineHandler{
		pipeline: pipeline,
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers the pipeline handler's routes on the given mux.
func (h *PipelineHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/pipeline/run", h.Run)
	mux.HandleFunc("GET /api/models", h.ListModels)
}

// Run handles POST /api/pipeline/run.
// Stage failures inside the run surface as warnings in the result, not as
// HTTP errors; only unusable input fails the request.
func (h *PipelineHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req services.PipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	result, err := h.pipeline.Run(r.Context(), req)
	if err != nil {
		h.logger.Error("Pipeline run rejected",
			zap.String("source_ref", req.SourceRef),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "pipeline_run_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListModels handles GET /api/models
func (h *PipelineHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	defaultID := h.registry.DefaultID()
	configs := h.registry.List()

	infos := make([]ModelInfo, 0, len(configs))
	for _, cfg := range configs {
		infos = append(infos, ModelInfo{
			Identifier: cfg.Identifier,
			Provider:   string(cfg.Provider),
			Default:    cfg.Identifier == defaultID,
		})
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: ModelListResponse{Models: infos}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
