package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/medquiz-ai/medquiz-engine/pkg/database"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

// PendingReviewRepository maintains the first-in review queue of sources.
// Registration and clearing are both idempotent: registering an already
// queued source and clearing an absent one are no-ops.
type PendingReviewRepository interface {
	Register(ctx context.Context, sourceID uuid.UUID) error
	Clear(ctx context.Context, sourceID uuid.UUID) error
	// List returns queue entries oldest first, bounded by limit (0 = all).
	List(ctx context.Context, limit int) ([]*models.PendingReview, error)
	IsPending(ctx context.Context, sourceID uuid.UUID) (bool, error)
}

// pendingReviewRepository implements PendingReviewRepository using PostgreSQL.
type pendingReviewRepository struct {
	db *database.DB
}

// NewPendingReviewRepository creates a new pending review repository.
func NewPendingReviewRepository(db *database.DB) PendingReviewRepository {
	return &pendingReviewRepository{db: db}
}

var _ PendingReviewRepository = (*pendingReviewRepository)(nil)

func (r *pendingReviewRepository) Register(ctx context.Context, sourceID uuid.UUID) error {
	query := `
		INSERT INTO quiz_pending_reviews (id, source_id)
		VALUES ($1, $2)
		ON CONFLICT (source_id) DO NOTHING`

	if _, err := r.db.Exec(ctx, query, uuid.New(), sourceID); err != nil {
		return fmt.Errorf("failed to register pending source: %w", err)
	}
	return nil
}

func (r *pendingReviewRepository) Clear(ctx context.Context, sourceID uuid.UUID) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM quiz_pending_reviews WHERE source_id = $1`, sourceID,
	); err != nil {
		return fmt.Errorf("failed to clear pending source: %w", err)
	}
	return nil
}

func (r *pendingReviewRepository) List(ctx context.Context, limit int) ([]*models.PendingReview, error) {
	query := `
		SELECT id, source_id, created_at
		FROM quiz_pending_reviews
		ORDER BY created_at`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]*models.PendingReview, 0)
	for rows.Next() {
		var p models.PendingReview
		if err := rows.Scan(&p.ID, &p.SourceID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending review: %w", err)
		}
		reviews = append(reviews, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending reviews: %w", err)
	}

	return reviews, nil
}

func (r *pendingReviewRepository) IsPending(ctx context.Context, sourceID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM quiz_pending_reviews WHERE source_id = $1)`,
		sourceID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending source: %w", err)
	}
	return exists, nil
}
