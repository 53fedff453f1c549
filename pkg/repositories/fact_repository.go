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

// DistractorLimit bounds every distractor query result.
const DistractorLimit = 10

// UpsertFactInput carries the fields of one extracted assertion.
// An empty Status means "keep the existing status, default pending on insert".
type UpsertFactInput struct {
	Subject          string
	Action           string
	Object           string
	Relation         string
	SourceID         uuid.UUID
	ContextSentences []string
	SchemaValid      bool
	Status           models.FactStatus
}

// DistractorQuery selects accepted facts usable as plausible-but-wrong swap
// material. Subject and Action+Object filters are independent; a fact matching
// either is returned. With no filters set, an unfiltered accepted set comes
// back, still bounded by DistractorLimit.
type DistractorQuery struct {
	Subject   string
	Action    string
	Object    string
	ExcludeID uuid.UUID
}

// FactRepository defines the interface for fact data access.
type FactRepository interface {
	// Upsert inserts the assertion or merges it into the existing row with
	// the same (subject, action, object, source_id). Duplication is absorbed,
	// never an error. Context sentences are replaced only by a non-empty list.
	Upsert(ctx context.Context, input *UpsertFactInput) (*models.Fact, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Fact, error)
	// ListAccepted returns accepted facts, optionally scoped to one source.
	ListAccepted(ctx context.Context, sourceID *uuid.UUID) ([]*models.Fact, error)
	// ListByStatus returns facts in the given status, newest first.
	ListByStatus(ctx context.Context, status models.FactStatus, limit int) ([]*models.Fact, error)
	ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.Fact, error)
	// QueryDistractors returns up to DistractorLimit accepted facts matching
	// the query. Never returns facts in any other status.
	QueryDistractors(ctx context.Context, q *DistractorQuery) ([]*models.Fact, error)
	// SetStatus is idempotent and returns false when the fact does not exist.
	// Every transition between statuses is legal; reviewers correct themselves.
	SetStatus(ctx context.Context, id uuid.UUID, status models.FactStatus) (bool, error)
}

// factRepository implements FactRepository using PostgreSQL.
type factRepository struct {
	db *database.DB
}

// NewFactRepository creates a new fact repository.
func NewFactRepository(db *database.DB) FactRepository {
	return &factRepository{db: db}
}

var _ FactRepository = (*factRepository)(nil)

func (r *factRepository) Upsert(ctx context.Context, input *UpsertFactInput) (*models.Fact, error) {
	if input.Status != "" && !models.IsValidFactStatus(input.Status) {
		return nil, fmt.Errorf("status %q: %w", input.Status, apperrors.ErrInvalidStatus)
	}

	sentences := input.ContextSentences
	if sentences == nil {
		sentences = []string{}
	}

	// Single-statement upsert so concurrent re-extraction of the same
	// assertion cannot race into duplicate rows.
	query := `
		INSERT INTO quiz_facts (
			id, subject, action, object, relation, source_id,
			context_sentences, schema_valid, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE(NULLIF($9, ''), 'pending'))
		ON CONFLICT (subject, action, object, source_id)
		DO UPDATE SET
			relation = EXCLUDED.relation,
			context_sentences = CASE
				WHEN cardinality(EXCLUDED.context_sentences) > 0 THEN EXCLUDED.context_sentences
				ELSE quiz_facts.context_sentences
			END,
			schema_valid = EXCLUDED.schema_valid,
			status = CASE WHEN $9 <> '' THEN $9 ELSE quiz_facts.status END,
			updated_at = now()
		RETURNING id, subject, action, object, relation, source_id,
		          context_sentences, schema_valid, status, created_at, updated_at`

	fact, err := scanFactRow(r.db.QueryRow(ctx, query,
		uuid.New(), input.Subject, input.Action, input.Object, input.Relation,
		input.SourceID, sentences, input.SchemaValid, string(input.Status),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert fact: %w", err)
	}
	return fact, nil
}

func (r *factRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Fact, error) {
	query := factSelect + ` WHERE id = $1`

	fact, err := scanFactRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("fact %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return fact, nil
}

func (r *factRepository) ListAccepted(ctx context.Context, sourceID *uuid.UUID) ([]*models.Fact, error) {
	query := factSelect + ` WHERE status = 'accepted'`
	args := []any{}
	if sourceID != nil {
		query += ` AND source_id = $1`
		args = append(args, *sourceID)
	}
	query += ` ORDER BY updated_at DESC`

	return r.queryFacts(ctx, query, args...)
}

func (r *factRepository) ListByStatus(ctx context.Context, status models.FactStatus, limit int) ([]*models.Fact, error) {
	query := factSelect + ` WHERE status = $1 ORDER BY created_at DESC`
	args := []any{status}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	return r.queryFacts(ctx, query, args...)
}

func (r *factRepository) ListBySource(ctx context.Context, sourceID uuid.UUID) ([]*models.Fact, error) {
	query := factSelect + ` WHERE source_id = $1 ORDER BY created_at`
	return r.queryFacts(ctx, query, sourceID)
}

func (r *factRepository) QueryDistractors(ctx context.Context, q *DistractorQuery) ([]*models.Fact, error) {
	query := factSelect + ` WHERE status = 'accepted'`
	args := []any{}
	n := 0
	next := func(v any) string {
		args = append(args, v)
		n++
		return fmt.Sprintf("$%d", n)
	}

	if q.ExcludeID != uuid.Nil {
		query += ` AND id <> ` + next(q.ExcludeID)
	}

	var matchers []string
	if q.Subject != "" {
		matchers = append(matchers, `subject = `+next(q.Subject))
	}
	if q.Action != "" && q.Object != "" {
		matchers = append(matchers,
			`(action = `+next(q.Action)+` AND object = `+next(q.Object)+`)`)
	}
	switch len(matchers) {
	case 1:
		query += ` AND ` + matchers[0]
	case 2:
		query += ` AND (` + matchers[0] + ` OR ` + matchers[1] + `)`
	}

	query += fmt.Sprintf(` ORDER BY updated_at DESC LIMIT %d`, DistractorLimit)

	return r.queryFacts(ctx, query, args...)
}

func (r *factRepository) SetStatus(ctx context.Context, id uuid.UUID, status models.FactStatus) (bool, error) {
	if !models.IsValidFactStatus(status) {
		return false, fmt.Errorf("status %q: %w", status, apperrors.ErrInvalidStatus)
	}

	result, err := r.db.Exec(ctx,
		`UPDATE quiz_facts SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return false, fmt.Errorf("failed to set fact status: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

func (r *factRepository) queryFacts(ctx context.Context, query string, args ...any) ([]*models.Fact, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	facts := make([]*models.Fact, 0)
	for rows.Next() {
		f, err := scanFactRows(rows)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating facts: %w", err)
	}

	return facts, nil
}

// ============================================================================
// Helper Functions - Scan
// ============================================================================

const factSelect = `
	SELECT id, subject, action, object, relation, source_id,
	       context_sentences, schema_valid, status, created_at, updated_at
	FROM quiz_facts`

func scanFactRow(row pgx.Row) (*models.Fact, error) {
	var f models.Fact
	err := row.Scan(
		&f.ID, &f.Subject, &f.Action, &f.Object, &f.Relation, &f.SourceID,
		&f.ContextSentences, &f.SchemaValid, &f.Status, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan fact: %w", err)
	}
	return &f, nil
}

func scanFactRows(rows pgx.Rows) (*models.Fact, error) {
	var f models.Fact
	err := rows.Scan(
		&f.ID, &f.Subject, &f.Action, &f.Object, &f.Relation, &f.SourceID,
		&f.ContextSentences, &f.SchemaValid, &f.Status, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan fact: %w", err)
	}
	return &f, nil
}
