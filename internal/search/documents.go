package search

import (
	"time"

	"github.com/mtlprog/flowtrack/internal/domain"
)

var taskMapping = map[string]any{
	"properties": map[string]any{
		"taskId":         map[string]any{"type": "keyword"},
		"title":          map[string]any{"type": "text"},
		"description":    map[string]any{"type": "text"},
		"organizationId": map[string]any{"type": "keyword"},
		"workflowId":     map[string]any{"type": "keyword"},
		"currentStage":   map[string]any{"type": "keyword"},
		"status":         map[string]any{"type": "keyword"},
		"createdBy":      map[string]any{"type": "keyword"},
		"createdAt":      map[string]any{"type": "date"},
		"updatedAt":      map[string]any{"type": "date"},
		"completedAt":    map[string]any{"type": "date"},
	},
}

var eventMapping = map[string]any{
	"properties": map[string]any{
		"eventId":        map[string]any{"type": "keyword"},
		"eventType":      map[string]any{"type": "keyword"},
		"organizationId": map[string]any{"type": "keyword"},
		"userId":         map[string]any{"type": "keyword"},
		"taskId":         map[string]any{"type": "keyword"},
		"workflowId":     map[string]any{"type": "keyword"},
		"fromStage":      map[string]any{"type": "keyword"},
		"toStage":        map[string]any{"type": "keyword"},
		"timestamp":      map[string]any{"type": "date"},
		"metadata":       map[string]any{"type": "object", "enabled": false},
	},
}

type taskDocument struct {
	TaskID         string     `json:"taskId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	OrganizationID string     `json:"organizationId"`
	WorkflowID     string     `json:"workflowId"`
	CurrentStage   string     `json:"currentStage"`
	Status         string     `json:"status"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
}

func newTaskDocument(task *domain.Task) taskDocument {
	return taskDocument{
		TaskID:         task.ID,
		Title:          task.Title,
		Description:    task.Description,
		OrganizationID: task.OrganizationID,
		WorkflowID:     task.WorkflowID,
		CurrentStage:   task.CurrentStage,
		Status:         string(task.Status),
		CreatedBy:      task.CreatedBy,
		CreatedAt:      task.CreatedAt,
		UpdatedAt:      task.UpdatedAt,
		CompletedAt:    task.CompletedAt,
	}
}

func (d taskDocument) toDomain() *domain.Task {
	return &domain.Task{
		ID:             d.TaskID,
		OrganizationID: d.OrganizationID,
		WorkflowID:     d.WorkflowID,
		Title:          d.Title,
		Description:    d.Description,
		CurrentStage:   d.CurrentStage,
		Status:         domain.TaskStatus(d.Status),
		CreatedBy:      d.CreatedBy,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
		CompletedAt:    d.CompletedAt,
	}
}

type eventDocument struct {
	EventID        string         `json:"eventId"`
	EventType      string         `json:"eventType"`
	OrganizationID string         `json:"organizationId"`
	UserID         string         `json:"userId"`
	TaskID         string         `json:"taskId"`
	WorkflowID     string         `json:"workflowId"`
	FromStage      *string        `json:"fromStage,omitempty"`
	ToStage        *string        `json:"toStage,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func newEventDocument(event *domain.Event) eventDocument {
	return eventDocument{
		EventID:        event.ID,
		EventType:      string(event.Type),
		OrganizationID: event.OrganizationID,
		UserID:         event.UserID,
		TaskID:         event.TaskID,
		WorkflowID:     event.WorkflowID,
		FromStage:      event.FromStage,
		ToStage:        event.ToStage,
		Timestamp:      event.Timestamp,
		Metadata:       event.Metadata,
	}
}

func (d eventDocument) toDomain() *domain.Event {
	return &domain.Event{
		ID:             d.EventID,
		Type:           domain.EventType(d.EventType),
		OrganizationID: d.OrganizationID,
		UserID:         d.UserID,
		TaskID:         d.TaskID,
		WorkflowID:     d.WorkflowID,
		FromStage:      d.FromStage,
		ToStage:        d.ToStage,
		Timestamp:      d.Timestamp,
		Metadata:       d.Metadata,
	}
}
