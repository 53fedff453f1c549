package models

import (
	"time"

	"github.com/google/uuid"
)

// PendingReview marks a source as waiting in the first-in review queue.
// At most one row exists per source; the row is removed once a candidate
// derived from the source is accepted.
type PendingReview struct {
	ID        uuid.UUID `json:"id"`
	SourceID  uuid.UUID `json:"source_id"`
	CreatedAt time.Time `json:"created_at"`
}
