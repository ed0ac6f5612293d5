package dto

// StageRequest is one stage in a workflow definition. Order defaults to list position.
type StageRequest struct {
	Name  string `json:"name"`
	Order *int   `json:"order,omitempty"`
}

// CreateWorkflowRequest represents the request body for POST /workflows.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Stages      []StageRequest `json:"stages"`
}

// CreateTaskRequest represents the request body for POST /tasks.
type CreateTaskRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	WorkflowID   string `json:"workflowId"`
	CurrentStage string `json:"currentStage,omitempty"`
}

// ChangeStageRequest represents the request body for PATCH /tasks/:id/stage.
type ChangeStageRequest struct {
	NewStage string `json:"newStage"`
}

// UpdateTaskRequest represents the request body for PATCH /tasks/:id.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

// AppendEventRequest represents the request body for POST /events.
type AppendEventRequest struct {
	EventType  string         `json:"eventType"`
	TaskID     string         `json:"taskId"`
	WorkflowID string         `json:"workflowId"`
	FromStage  *string        `json:"fromStage,omitempty"`
	ToStage    *string        `json:"toStage,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
