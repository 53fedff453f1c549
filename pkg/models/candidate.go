package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Candidate Status
// ============================================================================

// CandidateStatus represents the review state of a generated question.
type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusApproved CandidateStatus = "approved"
	CandidateStatusRejected CandidateStatus = "rejected"
)

// ValidCandidateStatuses contains all valid candidate status values.
var ValidCandidateStatuses = []CandidateStatus{
	CandidateStatusPending,
	CandidateStatusApproved,
	CandidateStatusRejected,
}

// IsValidCandidateStatus checks if the given status is valid.
func IsValidCandidateStatus(s CandidateStatus) bool {
	for _, v := range ValidCandidateStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// ============================================================================
// Candidate Model
// ============================================================================

// OptionCount is the required number of answer options on every candidate.
const OptionCount = 5

// Candidate is a generated multiple-choice question awaiting (or past) review.
// Candidates are mutated by refinement but never deleted; reviewers re-approve
// or reject instead.
type Candidate struct {
	ID            uuid.UUID `json:"id"`
	Stem          string    `json:"stem"`
	Question      string    `json:"question"`
	Options       []string  `json:"options"` // Always exactly OptionCount entries. Stored as a text array.
	CorrectOption int       `json:"correct_option"`
	// Provenance back-references. FactID is nil only for candidates produced
	// by the zero-fact fallback, which synthesizes its own ungated fact.
	SourceID      *uuid.UUID      `json:"source_id,omitempty"`
	FactID        *uuid.UUID      `json:"fact_id,omitempty"`
	VisualPrompt  string          `json:"visual_prompt,omitempty"`
	VisualTriplet string          `json:"visual_triplet,omitempty"`
	ImageURL      *string         `json:"image_url,omitempty"`
	Status        CandidateStatus `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Validate checks the structural invariants every candidate must satisfy.
func (c *Candidate) Validate() error {
	if c.Question == "" {
		return fmt.Errorf("question text is required")
	}
	if len(c.Options) != OptionCount {
		return fmt.Errorf("expected %d options, got %d", OptionCount, len(c.Options))
	}
	for i, opt := range c.Options {
		if opt == "" {
			return fmt.Errorf("option %d is empty", i)
		}
	}
	if c.CorrectOption < 0 || c.CorrectOption >= OptionCount {
		return fmt.Errorf("correct option index %d out of range [0,%d]", c.CorrectOption, OptionCount-1)
	}
	return nil
}

// CorrectAnswer returns the text of the correct option.
// Validate must have passed for the index to be trustworthy.
func (c *Candidate) CorrectAnswer() string {
	if c.CorrectOption < 0 || c.CorrectOption >= len(c.Options) {
		return ""
	}
	return c.Options[c.CorrectOption]
}

// IsApproved returns true if a reviewer approved the candidate.
func (c *Candidate) IsApproved() bool {
	return c.Status == CandidateStatusApproved
}
