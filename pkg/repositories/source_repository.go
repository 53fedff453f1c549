// Package repositories provides PostgreSQL data access for the quiz
// knowledge store: sources, facts, candidates, and the review queue.
package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/medquiz-ai/medquiz-engine/pkg/apperrors"
	"github.com/medquiz-ai/medquiz-engine/pkg/database"
	"github.com/medquiz-ai/medquiz-engine/pkg/models"
)

// SourceRepository defines the interface for source data access.
type SourceRepository interface {
	Create(ctx context.Context, source *models.Source) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Source, error)
	// GetByExternalID returns nil, nil when no source carries the external id.
	GetByExternalID(ctx context.Context, externalID string) (*models.Source, error)
	// ListChildren returns a document's chunks ordered by chunk position.
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Source, error)
	// UpdateContent replaces the cached content of a source. Sources are
	// otherwise immutable after ingestion.
	UpdateContent(ctx context.Context, id uuid.UUID, content string) error
}

// sourceRepository implements SourceRepository using PostgreSQL.
type sourceRepository struct {
	db *database.DB
}

// NewSourceRepository creates a new source repository.
func NewSourceRepository(db *database.DB) SourceRepository {
	return &sourceRepository{db: db}
}

var _ SourceRepository = (*sourceRepository)(nil)

func (r *sourceRepository) Create(ctx context.Context, source *models.Source) error {
	if source.ID == uuid.Nil {
		source.ID = uuid.New()
	}
	source.CreatedAt = time.Now()

	// A chunk's parent must itself be a root document; chunk-of-chunk is
	// structurally invalid.
	if source.ParentID != nil {
		parent, err := r.GetByID(ctx, *source.ParentID)
		if err != nil {
			return fmt.Errorf("lookup parent source: %w", err)
		}
		if parent.ParentID != nil {
			return apperrors.ErrChunkOfChunk
		}
	}

	query := `
		INSERT INTO quiz_sources (
			id, external_id, kind, title, authors, year, content,
			parent_id, section_title, chunk_order, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		source.ID, source.ExternalID, source.Kind, source.Title, source.Authors,
		source.Year, source.Content, source.ParentID, source.SectionTitle,
		source.ChunkOrder, source.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create source: %w", err)
	}

	return nil
}

func (r *sourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Source, error) {
	query := sourceSelect + ` WHERE id = $1`

	source, err := scanSourceRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("source %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return source, nil
}

func (r *sourceRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Source, error) {
	query := sourceSelect + ` WHERE external_id = $1`

	source, err := scanSourceRow(r.db.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return source, nil
}

func (r *sourceRepository) ListChildren(ctx context.Context, parentID uuid.UUID) ([]*models.Source, error) {
	query := sourceSelect + ` WHERE parent_id = $1 ORDER BY chunk_order`

	rows, err := r.db.Query(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child sources: %w", err)
	}
	defer rows.Close()

	sources := make([]*models.Source, 0)
	for rows.Next() {
		s, err := scanSourceRows(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sources: %w", err)
	}

	return sources, nil
}

func (r *sourceRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string) error {
	result, err := r.db.Exec(ctx, `UPDATE quiz_sources SET content = $2 WHERE id = $1`, id, content)
	if err != nil {
		return fmt.Errorf("failed to update source content: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("source %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

const sourceSelect = `
	SELECT id, external_id, kind, title, authors, year, content,
	       parent_id, section_title, chunk_order, created_at
	FROM quiz_sources`

func scanSourceRow(row pgx.Row) (*models.Source, error) {
	var s models.Source
	err := row.Scan(
		&s.ID, &s.ExternalID, &s.Kind, &s.Title, &s.Authors, &s.Year,
		&s.Content, &s.ParentID, &s.SectionTitle, &s.ChunkOrder, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	return &s, nil
}

func scanSourceRows(rows pgx.Rows) (*models.Source, error) {
	var s models.Source
	err := rows.Scan(
		&s.ID, &s.ExternalID, &s.Kind, &s.Title, &s.Authors, &s.Year,
		&s.Content, &s.ParentID, &s.SectionTitle, &s.ChunkOrder, &s.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan source: %w", err)
	}
	return &s, nil
}
