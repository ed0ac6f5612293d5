package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/mtlprog/flowtrack/internal/domain"
)

// TaskStatusCounts holds point-in-time task counts for an organization.
type TaskStatusCounts struct {
	Total     int
	Active    int
	Completed int
}

// CountByStatus counts tasks per status (current state, not historical).
func (r *TaskRepository) CountByStatus(ctx context.Context, organizationID string) (*TaskStatusCounts, error) {
	query, args, err := psql.
		Select("status", "COUNT(*)").
		From("tasks").
		Where(sq.Eq{"organization_id": organizationID}).
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build CountByStatus query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks by status: %w", err)
	}
	defer rows.Close()

	counts := &TaskStatusCounts{}
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts.Total += count
		switch status {
		case domain.TaskStatusActive:
			counts.Active = count
		case domain.TaskStatusCompleted:
			counts.Completed = count
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status rows: %w", err)
	}

	return counts, nil
}
