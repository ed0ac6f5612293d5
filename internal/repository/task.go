package repository

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/flowtrack/internal/domain"
)

// taskColumns is the shared list of columns for task queries.
var taskColumns = []string{
	"id", "organization_id", "workflow_id", "title", "description", "current_stage",
	"status", "created_by", "created_at", "updated_at", "completed_at",
}

// TaskRepository handles database operations for tasks.
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new TaskRepository.
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// scanTask scans a single row into a Task struct.
func scanTask(row pgx.Row) (*domain.Task, error) {
	var task domain.Task
	err := row.Scan(
		&task.ID,
		&task.OrganizationID,
		&task.WorkflowID,
		&task.Title,
		&task.Description,
		&task.CurrentStage,
		&task.Status,
		&task.CreatedBy,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	return &task, nil
}

// scanTasks scans multiple rows into a slice of Task structs.
func scanTasks(rows pgx.Rows) ([]*domain.Task, error) {
	defer rows.Close()

	tasks := []*domain.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return tasks, nil
}

// GetByID retrieves a task by ID within an organization.
func (r *TaskRepository) GetByID(ctx context.Context, organizationID, taskID string) (*domain.Task, error) {
	query, args, err := psql.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"id": taskID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for task: %w", err)
	}

	return scanTask(r.pool.QueryRow(ctx, query, args...))
}

// GetByIDForUpdate retrieves a task by ID with FOR UPDATE lock (within transaction).
// The lock serializes mutations of one task so its events are appended in order.
func (r *TaskRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, organizationID, taskID string) (*domain.Task, error) {
	query, args, err := psql.
		Select(taskColumns...).
		From("tasks").
		Where(sq.Eq{"id": taskID, "organization_id": organizationID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByIDForUpdate query for task %s: %w", taskID, err)
	}

	return scanTask(tx.QueryRow(ctx, query, args...))
}

// Create creates a new task in the database within a transaction.
// Returns the created task with ID, CreatedAt, and UpdatedAt populated.
func (r *TaskRepository) Create(ctx context.Context, tx pgx.Tx, task *domain.Task) (*domain.Task, error) {
	if task.Status == "" {
		task.Status = domain.TaskStatusActive
	}

	query, args, err := psql.
		Insert("tasks").
		Columns(
			"organization_id", "workflow_id", "title", "description",
			"current_stage", "status", "created_by",
		).
		Values(
			task.OrganizationID,
			task.WorkflowID,
			task.Title,
			task.Description,
			task.CurrentStage,
			task.Status,
			task.CreatedBy,
		).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build Create query for task: %w", err)
	}

	err = tx.QueryRow(ctx, query, args...).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	return task, nil
}

// nextVersionExpr advances updated_at strictly, so it orders a task's states
// even when transactions commit within the same clock tick.
const nextVersionExpr = "GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')"

// update applies a prepared UPDATE to one task and refreshes the returned timestamps.
func (r *TaskRepository) update(ctx context.Context, tx pgx.Tx, task *domain.Task, ub sq.UpdateBuilder) error {
	query, args, err := ub.
		Set("updated_at", sq.Expr(nextVersionExpr)).
		Where(sq.Eq{"id": task.ID, "organization_id": task.OrganizationID}).
		Suffix("RETURNING updated_at, completed_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build update query for task %s: %w", task.ID, err)
	}

	err = tx.QueryRow(ctx, query, args...).Scan(&task.UpdatedAt, &task.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTaskNotFound
		}
		return fmt.Errorf("update task %s: %w", task.ID, err)
	}

	return nil
}

// UpdateStage moves the task to a new current stage.
func (r *TaskRepository) UpdateStage(ctx context.Context, tx pgx.Tx, task *domain.Task, stage string) error {
	if err := r.update(ctx, tx, task, psql.Update("tasks").Set("current_stage", stage)); err != nil {
		return err
	}
	task.CurrentStage = stage
	return nil
}

// Complete marks the task completed and stamps completed_at.
func (r *TaskRepository) Complete(ctx context.Context, tx pgx.Tx, task *domain.Task) error {
	ub := psql.Update("tasks").
		Set("status", domain.TaskStatusCompleted).
		Set("completed_at", sq.Expr("NOW()"))
	if err := r.update(ctx, tx, task, ub); err != nil {
		return err
	}
	task.Status = domain.TaskStatusCompleted
	return nil
}

// UpdateDetails changes the title and description.
func (r *TaskRepository) UpdateDetails(ctx context.Context, tx pgx.Tx, task *domain.Task, title, description string) error {
	ub := psql.Update("tasks").
		Set("title", title).
		Set("description", description)
	if err := r.update(ctx, tx, task, ub); err != nil {
		return err
	}
	task.Title = title
	task.Description = description
	return nil
}

// Delete removes the task record and returns the removal's version, which is
// later than every updated_at the task had. Its events stay in the log.
func (r *TaskRepository) Delete(ctx context.Context, organizationID, taskID string) (time.Time, error) {
	query, args, err := psql.
		Delete("tasks").
		Where(sq.Eq{"id": taskID, "organization_id": organizationID}).
		Suffix("RETURNING " + nextVersionExpr).
		ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build Delete query for task %s: %w", taskID, err)
	}

	var deletedAt time.Time
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&deletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrTaskNotFound
		}
		return time.Time{}, fmt.Errorf("delete task: %w", err)
	}

	return deletedAt, nil
}

// All streams every task of an organization ordered by creation time.
func (r *TaskRepository) All(ctx context.Context, organizationID string) iter.Seq2[*domain.Task, error] {
	return func(yield func(*domain.Task, error) bool) {
		query, args, err := psql.
			Select(taskColumns...).
			From("tasks").
			Where(sq.Eq{"organization_id": organizationID}).
			OrderBy("created_at ASC", "id ASC").
			ToSql()
		if err != nil {
			yield(nil, fmt.Errorf("build All query for tasks: %w", err))
			return
		}

		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("query tasks: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(task, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate task rows: %w", err))
		}
	}
}
