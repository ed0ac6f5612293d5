package domain

import "time"

// TaskStatus represents the lifecycle status of a task.
type TaskStatus string

const (
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
)

// IsValid checks if the status is one of the allowed values.
func (s TaskStatus) IsValid() bool {
	return s == TaskStatusActive || s == TaskStatusCompleted
}

// Task is the current-state projection of a work item.
// CurrentStage always equals the to_stage of the task's most recent event.
type Task struct {
	ID             string
	OrganizationID string
	WorkflowID     string
	Title          string
	Description    string
	CurrentStage   string
	Status         TaskStatus
	CreatedBy      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CompletedAt    *time.Time
}

// IsCompleted returns true once the task has reached its terminal status.
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}
