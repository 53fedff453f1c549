package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medquiz-ai/medquiz-engine/pkg/apperrors"
	"github.com/medquiz-ai/medquiz-engine/pkg/database"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

// CandidateRepository defines the interface for question candidate data access.
// Candidates are never deleted; refinement mutates them in place and reviewers
// re-approve or reject.
type CandidateRepository interface {
	Create(ctx context.Context, candidate *models.Candidate) error
	// Update rewrites the refinable fields: stem, question, options, correct
	// option, and the visual prompt material.
	Update(ctx context.Context, candidate *models.Candidate) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Candidate, error)
	ListByStatus(ctx context.Context, status models.CandidateStatus, limit int) ([]*models.Candidate, error)
	ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.Candidate, error)
	// SetStatus is idempotent and returns false when the candidate does not exist.
	SetStatus(ctx context.Context, id uuid.UUID, status models.CandidateStatus) (bool, error)
	SetImage(ctx context.Context, id uuid.UUID, imageURL string) error
	ClearImage(ctx context.Context, id uuid.UUID) error
}

// candidateRepository implements CandidateRepository using PostgreSQL.
type candidateRepository struct {
	db *database.DB
}

// NewCandidateRepository creates a new candidate repository.
func NewCandidateRepository(db *database.DB) CandidateRepository {
	return &candidateRepository{db: db}
}

var _ CandidateRepository = (*candidateRepository)(nil)

func (r *candidateRepository) Create(ctx context.Context, candidate *models.Candidate) error {
	if err := candidate.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	if candidate.Status == "" {
		candidate.Status = models.CandidateStatusPending
	}

	query := `
		INSERT INTO quiz_candidates (
			id, stem, question, options, correct_option, source_id, fact_id,
			visual_prompt, visual_triplet, image_url, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		candidate.ID, candidate.Stem, candidate.Question, candidate.Options,
		candidate.CorrectOption, candidate.SourceID, candidate.FactID,
		candidate.VisualPrompt, candidate.VisualTriplet, candidate.ImageURL,
		candidate.Status,
	).Scan(&candidate.CreatedAt, &candidate.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create candidate: %w", err)
	}

	return nil
}

func (r *candidateRepository) Update(ctx context.Context, candidate *models.Candidate) error {
	if err := candidate.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}

	query := `
		UPDATE quiz_candidates
		SET stem = $2, question = $3, options = $4, correct_option = $5,
		    visual_prompt = $6, visual_triplet = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		candidate.ID, candidate.Stem, candidate.Question, candidate.Options,
		candidate.CorrectOption, candidate.VisualPrompt, candidate.VisualTriplet,
	).Scan(&candidate.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("candidate %s: %w", candidate.ID, apperrors.ErrNotFound)
		}
		return fmt.Errorf("failed to update candidate: %w", err)
	}

	return nil
}

func (r *candidateRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	query := candidateSelect + ` WHERE id = $1`

	candidate, err := scanCandidateRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("candidate %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return candidate, nil
}

func (r *candidateRepository) ListByStatus(ctx context.Context, status models.CandidateStatus, limit int) ([]*models.Candidate, error) {
	query := candidateSelect + ` WHERE status = $1 ORDER BY created_at DESC`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	return r.queryCandidates(ctx, query, args...)
}

func (r *candidateRepository) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.Candidate, error) {
	query := candidateSelect + ` WHERE source_id = $1 ORDER BY created_at DESC`
	return r.queryCandidates(ctx, query, sourceID)
}

func (r *candidateRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.CandidateStatus) (bool, error) {
	if !models.IsValidCandidateStatus(status) {
		return false, fmt.Errorf("status %q: %w", status, apperrors.ErrInvalidStatus)
	}

	result, err := r.db.Exec(ctx,
		`UPDATE quiz_candidates SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set candidate status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *candidateRepository) SetImage(ctx context.Context, id uuid.UUID, imageURL string) error {
	result, err := r.db.Exec(ctx,
		`UPDATE quiz_candidates SET image_url = $2, updated_at = now() WHERE id = $1`,
		id, imageURL,
	)
	if err != nil {
		return fmt.Errorf("failed to set candidate image: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("candidate %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *candidateRepository) ClearImage(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx,
		`UPDATE quiz_candidates SET image_url = NULL, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to clear candidate image: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("candidate %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *candidateRepository) queryCandidates(ctx context.Context, query string, args ...any) ([]*models.Candidate, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]*models.Candidate, 0)
	for rows.Next() {
		c, err := scanCandidateRows(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}

	return candidates, nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

const candidateSelect = `
	SELECT id, stem, question, options, correct_option, source_id, fact_id,
	       visual_prompt, visual_triplet, image_url, status, created_at, updated_at
	FROM quiz_candidates`

func scanCandidateRow(row pgx.Row) (*models.Candidate, error) {
	var c models.Candidate
	err := row.Scan(
		&c.ID, &c.Stem, &c.Question, &c.Options, &c.CorrectOption,
		&c.SourceID, &c.FactID, &c.VisualPrompt, &c.VisualTriplet,
		&c.ImageURL, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan candidate: %w", err)
	}
	return &c, nil
}

func scanCandidateRows(rows pgx.Rows) (*models.Candidate, error) {
	var c models.Candidate
	err := rows.Scan(
		&c.ID, &c.Stem, &c.Question, &c.Options, &c.CorrectOption,
		&c.SourceID, &c.FactID, &c.VisualPrompt, &c.VisualTriplet,
		&c.ImageURL, &c.Status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan candidate: %w", err)
	}
	return &c, nil
}
