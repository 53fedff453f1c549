package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Source Kind
// ============================================================================

// SourceKind classifies where a source document came from.
type SourceKind string

const (
	SourceKindLiterature    SourceKind = "literature"
	SourceKindDocument      SourceKind = "document"
	SourceKindDocumentChunk SourceKind = "document_chunk"
)

// ValidSourceKinds contains all valid source kind values.
var ValidSourceKinds = []SourceKind{
	SourceKindLiterature,
	SourceKindDocument,
	SourceKindDocumentChunk,
}

// IsValidSourceKind checks if the given kind is valid.
func IsValidSourceKind(k SourceKind) bool {
	for _, v := range ValidSourceKinds {
		if v == k {
			return true
		}
	}
	return false
}

// ============================================================================
// Source Model
// ============================================================================

// Source represents an ingested document, document chunk, or literature record.
// Sources are immutable after ingestion except for the cached content.
type Source struct {
	ID         uuid.UUID  `json:"id"`
	ExternalID string     `json:"external_id"` // e.g. "PMID:12345" or "pdf_a1b2c3d4"
	Kind       SourceKind `json:"kind"`
	Title      string     `json:"title,omitempty"`
	Authors    string     `json:"authors,omitempty"`
	Year       *int       `json:"year,omitempty"`
	Content    string     `json:"content,omitempty"`
	// ParentID links a chunk to its parent document. Parents never have a parent
	// themselves; chunk-of-chunk is rejected at ingestion.
	ParentID     *uuid.UUID `json:"parent_id,omitempty"`
	SectionTitle string     `json:"section_title,omitempty"`
	ChunkOrder   int        `json:"chunk_order,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// IsChunk returns true if the source is a chunk of a parent document.
func (s *Source) IsChunk() bool {
	return s.Kind == SourceKindDocumentChunk
}

// DisplayTitle returns the best human-readable label for the source.
func (s *Source) DisplayTitle() string {
	if s.SectionTitle != "" {
		return s.Title + " / " + s.SectionTitle
	}
	return s.Title
}
