package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Mirror receives committed writes for the secondary index.
// Implementations must not block and must not fail the caller.
// Mirrored task states are ordered by Task.UpdatedAt; a removal carries
// the version returned by the delete.
type Mirror interface {
	MirrorTask(task *domain.Task)
	MirrorEvent(event *domain.Event)
	RemoveTask(organizationID, taskID string, version time.Time)
}

// TaskChange is the result of a task mutation: the new task state and the event recording it.
type TaskChange struct {
	Task  *domain.Task
	Event *domain.Event
}

// TaskService coordinates task mutations. Every mutation updates the task row
// and appends exactly one event in the same transaction.
type TaskService struct {
	pool         *pgxpool.Pool
	taskRepo     *repository.TaskRepository
	workflowRepo *repository.WorkflowRepository
	eventRepo    *repository.EventRepository
	mirror       Mirror
}

// NewTaskService creates a new TaskService.
func NewTaskService(
	pool *pgxpool.Pool,
	taskRepo *repository.TaskRepository,
	workflowRepo *repository.WorkflowRepository,
	eventRepo *repository.EventRepository,
	mirror Mirror,
) *TaskService {
	return &TaskService{
		pool:         pool,
		taskRepo:     taskRepo,
		workflowRepo: workflowRepo,
		eventRepo:    eventRepo,
		mirror:       mirror,
	}
}

// rollback releases an unfinished transaction.
func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("failed to rollback transaction", "error", err)
	}
}

// appendEventAndCommit persists the event within the transaction, then commits.
func (s *TaskService) appendEventAndCommit(ctx context.Context, tx pgx.Tx, event *domain.Event) error {
	if err := s.eventRepo.Append(ctx, tx, event); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// publish hands a committed change to the mirror.
func (s *TaskService) publish(change *TaskChange) {
	s.mirror.MirrorTask(change.Task)
	if change.Event != nil {
		s.mirror.MirrorEvent(change.Event)
	}
}

// CreateTaskParams holds the input of CreateTask.
type CreateTaskParams struct {
	OrganizationID string
	UserID         string
	WorkflowID     string
	Title          string
	Description    string
	InitialStage   string // defaults to the workflow's first stage
}

// CreateTask inserts a task in its initial stage and records task_created.
func (s *TaskService) CreateTask(ctx context.Context, params CreateTaskParams) (*TaskChange, error) {
	if err := validateTitle(params.Title); err != nil {
		return nil, err
	}
	if err := validateDescription(params.Description); err != nil {
		return nil, err
	}
	if params.WorkflowID == "" {
		return nil, fmt.Errorf("%w: workflow_id is required", domain.ErrValidation)
	}

	workflow, err := s.workflowRepo.GetByID(ctx, params.OrganizationID, params.WorkflowID)
	if err != nil {
		return nil, err
	}

	stage, err := resolveInitialStage(workflow, params.InitialStage)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	title := strings.TrimSpace(params.Title)
	task, err := s.taskRepo.Create(ctx, tx, &domain.Task{
		OrganizationID: params.OrganizationID,
		WorkflowID:     workflow.ID,
		Title:          title,
		Description:    params.Description,
		CurrentStage:   stage,
		Status:         domain.TaskStatusActive,
		CreatedBy:      params.UserID,
	})
	if err != nil {
		return nil, err
	}

	event := &domain.Event{
		Type:           domain.EventTypeTaskCreated,
		OrganizationID: params.OrganizationID,
		UserID:         params.UserID,
		TaskID:         task.ID,
		WorkflowID:     workflow.ID,
		ToStage:        domain.StagePtr(stage),
		Metadata: map[string]any{
			"title":       title,
			"description": params.Description,
		},
	}
	if err := s.appendEventAndCommit(ctx, tx, event); err != nil {
		return nil, err
	}

	slog.Info("task created",
		"task_id", task.ID,
		"organization_id", task.OrganizationID,
		"workflow_id", task.WorkflowID,
		"stage", stage,
	)

	change := &TaskChange{Task: task, Event: event}
	s.publish(change)
	return change, nil
}

// ChangeStage moves an active task to another stage of its workflow and records stage_changed.
func (s *TaskService) ChangeStage(ctx context.Context, organizationID, userID, taskID, stage string) (*TaskChange, error) {
	stage = strings.TrimSpace(stage)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	task, err := s.taskRepo.GetByIDForUpdate(ctx, tx, organizationID, taskID)
	if err != nil {
		return nil, err
	}

	workflow, err := s.workflowRepo.GetByID(ctx, organizationID, task.WorkflowID)
	if err != nil {
		return nil, fmt.Errorf("get workflow: %w", err)
	}

	if err := canChangeStage(task, workflow, stage); err != nil {
		return nil, err
	}

	from := task.CurrentStage
	if err := s.taskRepo.UpdateStage(ctx, tx, task, stage); err != nil {
		return nil, err
	}

	event := &domain.Event{
		Type:           domain.EventTypeStageChanged,
		OrganizationID: organizationID,
		UserID:         userID,
		TaskID:         task.ID,
		WorkflowID:     task.WorkflowID,
		FromStage:      domain.StagePtr(from),
		ToStage:        domain.StagePtr(stage),
		Metadata:       map[string]any{},
	}
	if err := s.appendEventAndCommit(ctx, tx, event); err != nil {
		return nil, err
	}

	slog.Info("task stage changed",
		"task_id", task.ID,
		"organization_id", organizationID,
		"from_stage", from,
		"to_stage", stage,
		"event_id", event.ID,
	)

	change := &TaskChange{Task: task, Event: event}
	s.publish(change)
	return change, nil
}

// CompleteTask marks an active task completed in its current stage and records task_completed.
func (s *TaskService) CompleteTask(ctx context.Context, organizationID, userID, taskID string) (*TaskChange, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	task, err := s.taskRepo.GetByIDForUpdate(ctx, tx, organizationID, taskID)
	if err != nil {
		return nil, err
	}

	if err := canComplete(task); err != nil {
		return nil, err
	}

	if err := s.taskRepo.Complete(ctx, tx, task); err != nil {
		return nil, err
	}

	metadata := map[string]any{}
	if task.CompletedAt != nil {
		metadata["completedAt"] = task.CompletedAt.UTC()
	}
	event := &domain.Event{
		Type:           domain.EventTypeTaskCompleted,
		OrganizationID: organizationID,
		UserID:         userID,
		TaskID:         task.ID,
		WorkflowID:     task.WorkflowID,
		ToStage:        domain.StagePtr(task.CurrentStage),
		Metadata:       metadata,
	}
	if err := s.appendEventAndCommit(ctx, tx, event); err != nil {
		return nil, err
	}

	slog.Info("task completed",
		"task_id", task.ID,
		"organization_id", organizationID,
		"stage", task.CurrentStage,
		"event_id", event.ID,
	)

	change := &TaskChange{Task: task, Event: event}
	s.publish(change)
	return change, nil
}

// UpdateTaskParams holds the input of UpdateTask. Nil fields are left unchanged.
type UpdateTaskParams struct {
	OrganizationID string
	UserID         string
	TaskID         string
	Title          *string
	Description    *string
}

// UpdateTask edits title and description and records task_updated with the changed fields.
// When nothing changes no event is written and Event is nil.
func (s *TaskService) UpdateTask(ctx context.Context, params UpdateTaskParams) (*TaskChange, error) {
	if params.Title == nil && params.Description == nil {
		return nil, fmt.Errorf("%w: title or description is required", domain.ErrValidation)
	}
	if params.Title != nil {
		if err := validateTitle(*params.Title); err != nil {
			return nil, err
		}
	}
	if params.Description != nil {
		if err := validateDescription(*params.Description); err != nil {
			return nil, err
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	task, err := s.taskRepo.GetByIDForUpdate(ctx, tx, params.OrganizationID, params.TaskID)
	if err != nil {
		return nil, err
	}

	title, description := task.Title, task.Description
	changes := map[string]any{}
	if params.Title != nil && strings.TrimSpace(*params.Title) != task.Title {
		title = strings.TrimSpace(*params.Title)
		changes["title"] = map[string]any{"from": task.Title, "to": title}
	}
	if params.Description != nil && *params.Description != task.Description {
		description = *params.Description
		changes["description"] = map[string]any{"from": task.Description, "to": description}
	}
	if len(changes) == 0 {
		return &TaskChange{Task: task}, nil
	}

	if err := s.taskRepo.UpdateDetails(ctx, tx, task, title, description); err != nil {
		return nil, err
	}

	event := &domain.Event{
		Type:           domain.EventTypeTaskUpdated,
		OrganizationID: params.OrganizationID,
		UserID:         params.UserID,
		TaskID:         task.ID,
		WorkflowID:     task.WorkflowID,
		ToStage:        domain.StagePtr(task.CurrentStage),
		Metadata:       map[string]any{"changes": changes},
	}
	if err := s.appendEventAndCommit(ctx, tx, event); err != nil {
		return nil, err
	}

	slog.Info("task updated",
		"task_id", task.ID,
		"organization_id", params.OrganizationID,
		"event_id", event.ID,
	)

	change := &TaskChange{Task: task, Event: event}
	s.publish(change)
	return change, nil
}

// DeleteTask removes the task record. Its history stays in the event log.
func (s *TaskService) DeleteTask(ctx context.Context, organizationID, taskID string) error {
	deletedAt, err := s.taskRepo.Delete(ctx, organizationID, taskID)
	if err != nil {
		return err
	}

	slog.Info("task deleted", "task_id", taskID, "organization_id", organizationID)

	s.mirror.RemoveTask(organizationID, taskID, deletedAt)
	return nil
}

// GetTask returns one task of the organization.
func (s *TaskService) GetTask(ctx context.Context, organizationID, taskID string) (*domain.Task, error) {
	return s.taskRepo.GetByID(ctx, organizationID, taskID)
}

// TaskPage is one page of ListTasks with the limit and offset actually applied.
type TaskPage struct {
	Tasks  []*domain.Task
	Total  int
	Limit  int
	Offset int
}

// ListTasks returns a page of tasks, newest first, and the total count.
func (s *TaskService) ListTasks(ctx context.Context, filters repository.TaskListFilters) (*TaskPage, error) {
	filters.Limit = clampLimit(filters.Limit, defaultListLimit, maxListLimit)
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, *filters.Status)
	}

	tasks, total, err := s.taskRepo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	return &TaskPage{Tasks: tasks, Total: total, Limit: filters.Limit, Offset: filters.Offset}, nil
}

// clampLimit applies a default to non-positive limits and caps large ones.
func clampLimit(limit, fallback, maximum int) int {
	switch {
	case limit <= 0:
		return fallback
	case limit > maximum:
		return maximum
	default:
		return limit
	}
}
