package domain

import (
	"fmt"
	"time"
)

// EventType represents the kind of state transition an event records.
type EventType string

const (
	EventTypeTaskCreated   EventType = "task_created"
	EventTypeStageChanged  EventType = "stage_changed"
	EventTypeTaskCompleted EventType = "task_completed"
	EventTypeTaskUpdated   EventType = "task_updated"
)

// IsValid checks if the event type is one of the allowed values.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeTaskCreated, EventTypeStageChanged, EventTypeTaskCompleted, EventTypeTaskUpdated:
		return true
	default:
		return false
	}
}

// Rank orders event types that share a timestamp within one task's history.
// A task is created before it moves, and moves before it completes.
func (t EventType) Rank() int {
	switch t {
	case EventTypeTaskCreated:
		return 0
	case EventTypeStageChanged:
		return 1
	case EventTypeTaskUpdated:
		return 2
	case EventTypeTaskCompleted:
		return 3
	default:
		return 4
	}
}

// Event is an immutable record of one task transition.
// Events are never updated or deleted once appended.
type Event struct {
	ID             string
	Type           EventType
	OrganizationID string
	UserID         string
	TaskID         string
	WorkflowID     string
	FromStage      *string
	ToStage        *string
	Timestamp      time.Time
	Metadata       map[string]any
}

// Validate checks that all required references are present.
func (e *Event) Validate() error {
	if !e.Type.IsValid() {
		return fmt.Errorf("%w: invalid event type %q", ErrValidation, e.Type)
	}

	required := []struct {
		name  string
		value string
	}{
		{"organization_id", e.OrganizationID},
		{"user_id", e.UserID},
		{"task_id", e.TaskID},
		{"workflow_id", e.WorkflowID},
	}
	for _, field := range required {
		if field.value == "" {
			return fmt.Errorf("%w: %s is required", ErrValidation, field.name)
		}
	}

	return nil
}

// FromStageName returns the from stage or an empty string.
func (e *Event) FromStageName() string {
	if e.FromStage == nil {
		return ""
	}
	return *e.FromStage
}

// ToStageName returns the to stage or an empty string.
func (e *Event) ToStageName() string {
	if e.ToStage == nil {
		return ""
	}
	return *e.ToStage
}

// Before reports whether e sorts before other in analytics order:
// task, then timestamp, then event type rank, then id.
func (e *Event) Before(other *Event) bool {
	if e.TaskID != other.TaskID {
		return e.TaskID < other.TaskID
	}
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	if e.Type.Rank() != other.Type.Rank() {
		return e.Type.Rank() < other.Type.Rank()
	}
	return e.ID < other.ID
}

// StagePtr is a helper for building optional stage fields.
func StagePtr(name string) *string {
	if name == "" {
		return nil
	}
	return &name
}
