package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/medquiz-ai/medquiz-engine/pkg/models"
	"github.com/medquiz-ai/medquiz-engine/pkg/pubmed"
	"github.com/medquiz-ai/medquiz-engine/pkg/services"
)

// LiteratureClient is the slice of the PubMed client the handler needs.
type LiteratureClient interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
	Fetch(ctx context.Context, ids []string) ([]pubmed.Article, error)
	FetchOne(ctx context.Context, id string) (*pubmed.Article, error)
}

// RegisterDocumentRequest for POST /api/sources/document
type RegisterDocumentRequest struct {
	Filename string `json:"filename"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
}

// RegisterDocumentResponse returns the parent source and its section chunks.
type RegisterDocumentResponse struct {
	Source *models.Source   `json:"source"`
	Chunks []*models.Source `json:"chunks"`
}

// RegisterTextRequest for POST /api/sources/text
type RegisterTextRequest struct {
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// RegisterLiteratureRequest for POST /api/sources/literature
type RegisterLiteratureRequest struct {
	PMID string `json:"pmid"`
}

// LiteratureSearchResponse for GET /api/literature/search
type LiteratureSearchResponse struct {
	Articles []pubmed.Article `json:"articles"`
	Total    int              `json:"total"`
}

// SourcesHandler handles source registration and literature search.
type SourcesHandler struct {
	ingestion  services.IngestionService
	literature LiteratureClient
	logger     *zap.Logger
}

// NewSourcesHandler creates a new sources handler.
func NewSourcesHandler(ingestion services.IngestionService, literature LiteratureClient, logger *zap.Logger) *SourcesHandler {
	return &SourcesHandler{
		ingestion:  ingestion,
		literature: literature,
		logger:     logger,
	}
}

// RegisterRoutes registers the sources handler's routes on the given mux.
func (h *SourcesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sources/document", h.RegisterDocument)
	mux.HandleFunc("POST /api/sources/text", h.RegisterText)
	mux.HandleFunc("POST /api/sources/literature", h.RegisterLiterature)
	mux.HandleFunc("GET /api/literature/search", h.SearchLiterature)
}

// RegisterDocument handles POST /api/sources/document.
// Splits the extracted document text into sections and registers the parent
// source plus one chunk per kept section.
func (h *SourcesHandler) RegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req RegisterDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if strings.TrimSpace(req.Filename) == "" || strings.TrimSpace(req.Text) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "filename and text are required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	sections := services.SplitSections(req.Text)
	source, chunks, err := h.ingestion.RegisterDocument(r.Context(), req.Filename, req.Title, sections)
	if err != nil {
		h.logger.Error("Failed to register document",
			zap.String("filename", req.Filename),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "register_document_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	response := RegisterDocumentResponse{Source: source, Chunks: chunks}
	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RegisterText handles POST /api/sources/text
func (h *SourcesHandler) RegisterText(w http.ResponseWriter, r *http.Request) {
	var req RegisterTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	source, err := h.ingestion.RegisterText(r.Context(), req.Title, req.Text)
	if err != nil {
		h.logger.Error("Failed to register text source", zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadRequest, "register_text_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: source}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RegisterLiterature handles POST /api/sources/literature.
// Fetches the article from PubMed and registers it as a literature source.
func (h *SourcesHandler) RegisterLiterature(w http.ResponseWriter, r *http.Request) {
	var req RegisterLiteratureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if strings.TrimSpace(req.PMID) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "pmid is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	article, err := h.literature.FetchOne(r.Context(), req.PMID)
	if err != nil {
		h.logger.Error("Failed to fetch article",
			zap.String("pmid", req.PMID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadGateway, "pubmed_fetch_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	source, err := h.ingestion.RegisterLiterature(r.Context(), article)
	if err != nil {
		h.logger.Error("Failed to register literature source",
			zap.String("pmid", req.PMID),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "register_literature_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: source}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SearchLiterature handles GET /api/literature/search?q=...&limit=...
func (h *SourcesHandler) SearchLiterature(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if strings.TrimSpace(query) == "" {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_request", "q is required"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	limit := 0
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

	ids, err := h.literature.Search(r.Context(), query, limit)
	if err != nil {
		h.logger.Error("Failed to search PubMed",
			zap.String("query", query),
			zap.Error(err))
		if err := ErrorResponse(w, http.StatusBadGateway, "pubmed_search_failed", err.Error()); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	articles := []pubmed.Article{}
	if len(ids) > 0 {
		articles, err = h.literature.Fetch(r.Context(), ids)
		if err != nil {
			h.logger.Error("Failed to fetch search results",
				zap.Strings("ids", ids),
				zap.Error(err))
			if err := ErrorResponse(w, http.StatusBadGateway, "pubmed_fetch_failed", err.Error()); err != nil {
				h.logger.Error("Failed to write error response", zap.Error(err))
			}
			return
		}
	}

	response := LiteratureSearchResponse{Articles: articles, Total: len(articles)}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: response}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
