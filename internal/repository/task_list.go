package repository

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/mtlprog/flowtrack/internal/domain"
)

// TaskListFilters holds all supported filters for task listing.
type TaskListFilters struct {
	OrganizationID string             // Required: tenant partition
	WorkflowID     string             // Optional: filter by workflow
	Status         *domain.TaskStatus // Optional: filter by status
	Limit          int                // Required: page size
	Offset         int                // Required: page offset
}

// applyTaskFilters adds the shared WHERE clauses to list and count queries.
func applyTaskFilters(qb sq.SelectBuilder, filters TaskListFilters) sq.SelectBuilder {
	qb = qb.Where(sq.Eq{"organization_id": filters.OrganizationID})
	if filters.WorkflowID != "" {
		qb = qb.Where(sq.Eq{"workflow_id": filters.WorkflowID})
	}
	if filters.Status != nil {
		qb = qb.Where(sq.Eq{"status": *filters.Status})
	}
	return qb
}

// List retrieves tasks with filters and pagination, newest first.
func (r *TaskRepository) List(ctx context.Context, filters TaskListFilters) ([]*domain.Task, int, error) {
	if filters.OrganizationID == "" {
		return nil, 0, fmt.Errorf("%w: organization_id is required", domain.ErrValidation)
	}

	qb := applyTaskFilters(psql.Select(taskColumns...).From("tasks"), filters).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(filters.Limit)).
		Offset(uint64(filters.Offset))

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build List query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query tasks: %w", err)
	}

	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, 0, err
	}

	countQuery, countArgs, err := applyTaskFilters(psql.Select("COUNT(*)").From("tasks"), filters).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	return tasks, total, nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// SearchText performs case-insensitive substring matching on title and description.
// It backs task search when the secondary index is unavailable. Title matches rank first.
func (r *TaskRepository) SearchText(ctx context.Context, organizationID, text string, limit int) ([]*domain.Task, error) {
	pattern := "%" + escapeLike(strings.TrimSpace(text)) + "%"

	query, args, err := psql.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"organization_id": organizationID}).
		Where(sq.Or{
			sq.ILike{"title": pattern},
			sq.ILike{"description": pattern},
		}).
		OrderByClause("CASE WHEN title ILIKE ? THEN 0 ELSE 1 END", pattern).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build SearchText query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}

	return scanTasks(rows)
}
