package dto

import (
	"time"

	"github.com/mtlprog/flowtrack/internal/analytics"
	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/search"
)

// WorkflowResponse represents a workflow definition.
type WorkflowResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Stages      []domain.Stage `json:"stages"`
	CreatedBy   string         `json:"createdBy"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// WorkflowsListResponse represents the response for GET /workflows.
type WorkflowsListResponse struct {
	Workflows []WorkflowResponse `json:"workflows"`
	Count     int                `json:"count"`
}

// TaskResponse represents a task's current state.
type TaskResponse struct {
	ID           string     `json:"id"`
	WorkflowID   string     `json:"workflowId"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	CurrentStage string     `json:"currentStage"`
	Status       string     `json:"status"`
	CreatedBy    string     `json:"createdBy"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt"`
}

// TasksListResponse represents the response for GET /tasks.
type TasksListResponse struct {
	Tasks  []TaskResponse `json:"tasks"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// EventResponse represents one event of the log.
type EventResponse struct {
	ID         string         `json:"id"`
	EventType  string         `json:"eventType"`
	TaskID     string         `json:"taskId"`
	WorkflowID string         `json:"workflowId"`
	UserID     string         `json:"userId"`
	FromStage  *string        `json:"fromStage"`
	ToStage    *string        `json:"toStage"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata"`
}

// EventsListResponse represents a list of events.
type EventsListResponse struct {
	Events []EventResponse `json:"events"`
	Count  int             `json:"count"`
}

// TaskChangeResponse is returned by task mutations: the new state and the event recording it.
// Event is null when an update changed nothing.
type TaskChangeResponse struct {
	Task  TaskResponse   `json:"task"`
	Event *EventResponse `json:"event"`
}

// StageDurationResponse represents average dwell time per stage.
type StageDurationResponse struct {
	WorkflowID string                         `json:"workflowId"`
	Stages     map[string]analytics.StageStat `json:"stages"`
}

// BottlenecksResponse represents stages ranked by average dwell time.
type BottlenecksResponse struct {
	WorkflowID  string                 `json:"workflowId"`
	Bottlenecks []analytics.Bottleneck `json:"bottlenecks"`
}

// TimelineResponse represents completions per bucket.
type TimelineResponse struct {
	GroupBy string                    `json:"groupBy"`
	Points  []analytics.TimelinePoint `json:"points"`
}

// TaskHitResponse represents one task search match.
type TaskHitResponse struct {
	TaskID      string              `json:"taskId"`
	WorkflowID  string              `json:"workflowId"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Stage       string              `json:"currentStage"`
	Status      string              `json:"status"`
	Score       float64             `json:"score"`
	Highlights  map[string][]string `json:"highlights,omitempty"`
}

// TaskSearchResponse represents the response for GET /search/tasks.
// Degraded is true when results come from substring matching instead of the index.
type TaskSearchResponse struct {
	Hits     []TaskHitResponse `json:"hits"`
	Count    int               `json:"count"`
	Degraded bool              `json:"degraded"`
}

// EventSearchResponse represents the response for GET /search/events.
type EventSearchResponse struct {
	Events   []EventResponse `json:"events"`
	Count    int             `json:"count"`
	Degraded bool            `json:"degraded"`
}

// ToWorkflow converts a domain workflow.
func ToWorkflow(workflow *domain.Workflow) WorkflowResponse {
	stages := workflow.Stages
	if stages == nil {
		stages = []domain.Stage{}
	}
	return WorkflowResponse{
		ID:          workflow.ID,
		Name:        workflow.Name,
		Description: workflow.Description,
		Stages:      stages,
		CreatedBy:   workflow.CreatedBy,
		CreatedAt:   workflow.CreatedAt,
	}
}

// ToWorkflows converts a list of domain workflows.
func ToWorkflows(workflows []*domain.Workflow) WorkflowsListResponse {
	items := make([]WorkflowResponse, len(workflows))
	for i, workflow := range workflows {
		items[i] = ToWorkflow(workflow)
	}
	return WorkflowsListResponse{Workflows: items, Count: len(items)}
}

// ToTask converts a domain task.
func ToTask(task *domain.Task) TaskResponse {
	return TaskResponse{
		ID:           task.ID,
		WorkflowID:   task.WorkflowID,
		Title:        task.Title,
		Description:  task.Description,
		CurrentStage: task.CurrentStage,
		Status:       string(task.Status),
		CreatedBy:    task.CreatedBy,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		CompletedAt:  task.CompletedAt,
	}
}

// ToEvent converts a domain event.
func ToEvent(event *domain.Event) EventResponse {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return EventResponse{
		ID:         event.ID,
		EventType:  string(event.Type),
		TaskID:     event.TaskID,
		WorkflowID: event.WorkflowID,
		UserID:     event.UserID,
		FromStage:  event.FromStage,
		ToStage:    event.ToStage,
		Timestamp:  event.Timestamp,
		Metadata:   metadata,
	}
}

// ToEvents converts a list of domain events.
func ToEvents(events []*domain.Event) EventsListResponse {
	items := make([]EventResponse, len(events))
	for i, event := range events {
		items[i] = ToEvent(event)
	}
	return EventsListResponse{Events: items, Count: len(items)}
}

// ToTaskChange converts the result of a task mutation.
func ToTaskChange(task *domain.Task, event *domain.Event) TaskChangeResponse {
	response := TaskChangeResponse{Task: ToTask(task)}
	if event != nil {
		converted := ToEvent(event)
		response.Event = &converted
	}
	return response
}

// ToTaskHits converts task search matches.
func ToTaskHits(hits []search.TaskHit, degraded bool) TaskSearchResponse {
	items := make([]TaskHitResponse, len(hits))
	for i, hit := range hits {
		items[i] = TaskHitResponse{
			TaskID:      hit.Task.ID,
			WorkflowID:  hit.Task.WorkflowID,
			Title:       hit.Task.Title,
			Description: hit.Task.Description,
			Stage:       hit.Task.CurrentStage,
			Status:      string(hit.Task.Status),
			Score:       hit.Score,
			Highlights:  hit.Highlights,
		}
	}
	return TaskSearchResponse{Hits: items, Count: len(items), Degraded: degraded}
}
