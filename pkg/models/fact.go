package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Fact Status
// ============================================================================

// FactStatus represents the review state of an extracted fact.
type FactStatus string

const (
	FactStatusPending  FactStatus = "pending"
	FactStatusAccepted FactStatus = "accepted"
	FactStatusRejected FactStatus = "rejected"
)

// ValidFactStatuses contains all valid fact status values.
var ValidFactStatuses = []FactStatus{
	FactStatusPending,
	FactStatusAccepted,
	FactStatusRejected,
}

// IsValidFactStatus checks if the given status is valid.
func IsValidFactStatus(s FactStatus) bool {
	for _, v := range ValidFactStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Fact Model
// ============================================================================

// Fact is a subject/action/object assertion extracted from a source,
// tagged with a relation from the configured vocabulary and backed by
// verbatim context sentences copied from the source text.
//
// (subject, action, object, source_id) is the natural dedup key:
// re-extracting the same assertion from the same source updates the
// existing row instead of creating a duplicate.
type Fact struct {
	ID       uuid.UUID `json:"id"`
	Subject  string    `json:"subject"`
	Action   string    `json:"action"`
	Object   string    `json:"object"`
	Relation string    `json:"relation"`
	SourceID uuid.UUID `json:"source_id"`
	// ContextSentences holds 2-4 verbatim sentences from the source that
	// support the assertion. Stored as a text array.
	ContextSentences []string   `json:"context_sentences,omitempty"`
	SchemaValid      bool       `json:"schema_valid"`
	Status           FactStatus `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsAccepted returns true if a reviewer (or auto-accept) approved the fact.
func (f *Fact) IsAccepted() bool {
	return f.Status == FactStatusAccepted
}

// IsPending returns true if the fact awaits review.
func (f *Fact) IsPending() bool {
	return f.Status == FactStatusPending
}

// Statement renders the assertion as a readable sentence fragment.
func (f *Fact) Statement() string {
	return f.Subject + " " + f.Action + " " + f.Object
}
