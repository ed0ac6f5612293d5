package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeadLetter is a mirror job that could not be delivered to the search index.
type DeadLetter struct {
	ID             string
	Kind           string
	EntityID       string
	OrganizationID string
	Payload        map[string]any
	Error          string
	Attempts       int
	CreatedAt      time.Time
}

// DeadLetterRepository stores mirror jobs that exhausted their retries.
type DeadLetterRepository struct {
	pool *pgxpool.Pool
}

// NewDeadLetterRepository creates a new DeadLetterRepository.
func NewDeadLetterRepository(pool *pgxpool.Pool) *DeadLetterRepository {
	return &DeadLetterRepository{pool: pool}
}

// Save records a failed mirror job.
func (r *DeadLetterRepository) Save(ctx context.Context, letter *DeadLetter) error {
	payload := letter.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	query, args, err := psql.
		Insert("index_dead_letters").
		Columns("kind", "entity_id", "organization_id", "payload", "error", "attempts").
		Values(letter.Kind, letter.EntityID, letter.OrganizationID, payload, letter.Error, letter.Attempts).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Save query for dead letter: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&letter.ID, &letter.CreatedAt); err != nil {
		return fmt.Errorf("save dead letter: %w", err)
	}

	return nil
}

// List returns the oldest dead letters first.
func (r *DeadLetterRepository) List(ctx context.Context, limit int) ([]*DeadLetter, error) {
	query, args, err := psql.
		Select("id", "kind", "entity_id", "organization_id", "payload", "error", "attempts", "created_at").
		From("index_dead_letters").
		OrderBy("created_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query for dead letters: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	defer rows.Close()

	letters := []*DeadLetter{}
	for rows.Next() {
		var letter DeadLetter
		err := rows.Scan(
			&letter.ID,
			&letter.Kind,
			&letter.EntityID,
			&letter.OrganizationID,
			&letter.Payload,
			&letter.Error,
			&letter.Attempts,
			&letter.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letters = append(letters, &letter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dead letter rows: %w", err)
	}

	return letters, nil
}

// DeleteBefore purges dead letters created at or before the cutoff, returning how many were removed.
// A successful reindex makes older dead letters obsolete.
func (r *DeadLetterRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := psql.
		Delete("index_dead_letters").
		Where(sq.LtOrEq{"created_at": cutoff}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build DeleteBefore query for dead letters: %w", err)
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete dead letters: %w", err)
	}

	return tag.RowsAffected(), nil
}
