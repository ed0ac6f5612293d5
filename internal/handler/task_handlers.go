package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/handler/dto"
	"github.com/mtlprog/flowtrack/internal/repository"
	"github.com/mtlprog/flowtrack/internal/service"
)

// handleCreateTask creates a task in its workflow's first stage, or in currentStage when given.
func (h *Handler) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req dto.CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	workflowID, err := uuid.Parse(strings.TrimSpace(req.WorkflowID))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "workflowId must be a valid UUID")
		return
	}

	change, err := h.taskService.CreateTask(r.Context(), service.CreateTaskParams{
		OrganizationID: tenant.OrganizationID,
		UserID:         tenant.UserID,
		WorkflowID:     workflowID.String(),
		Title:          req.Title,
		Description:    req.Description,
		InitialStage:   req.CurrentStage,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.ToTaskChange(change.Task, change.Event))
}

// handleListTasks lists tasks with optional workflowId and status filters.
func (h *Handler) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	query := newQueryParams(r.URL.Query())
	filters := repository.TaskListFilters{
		OrganizationID: tenant.OrganizationID,
		WorkflowID:     query.UUID("workflowId"),
		Limit:          query.Int("limit"),
		Offset:         query.Int("offset"),
	}
	if status := query.String("status"); status != "" {
		s := domain.TaskStatus(status)
		filters.Status = &s
	}
	if err := query.Err(); err != nil {
		respondDomainError(w, err)
		return
	}

	page, err := h.taskService.ListTasks(r.Context(), filters)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	response := dto.TasksListResponse{
		Tasks:  make([]dto.TaskResponse, len(page.Tasks)),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	for i, task := range page.Tasks {
		response.Tasks[i] = dto.ToTask(task)
	}

	respondJSON(w, http.StatusOK, response)
}

// handleGetTask returns a task with its full event history.
func (h *Handler) handleGetTask(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	taskID, ok := extractID(w, r, "id")
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(r.Context(), tenant.OrganizationID, taskID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	events, err := h.eventService.TaskHistory(r.Context(), tenant.OrganizationID, taskID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Task   dto.TaskResponse    `json:"task"`
		Events []dto.EventResponse `json:"events"`
	}{
		Task:   dto.ToTask(task),
		Events: dto.ToEvents(events).Events,
	})
}

// handleChangeStage moves a task to another stage of its workflow.
func (h *Handler) handleChangeStage(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	taskID, ok := extractID(w, r, "id")
	if !ok {
		return
	}

	var req dto.ChangeStageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	change, err := h.taskService.ChangeStage(r.Context(), tenant.OrganizationID, tenant.UserID, taskID, req.NewStage)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskChange(change.Task, change.Event))
}

// handleCompleteTask marks a task completed in its current stage.
func (h *Handler) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	taskID, ok := extractID(w, r, "id")
	if !ok {
		return
	}

	change, err := h.taskService.CompleteTask(r.Context(), tenant.OrganizationID, tenant.UserID, taskID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskChange(change.Task, change.Event))
}

// handleUpdateTask edits title and description.
func (h *Handler) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	taskID, ok := extractID(w, r, "id")
	if !ok {
		return
	}

	var req dto.UpdateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	change, err := h.taskService.UpdateTask(r.Context(), service.UpdateTaskParams{
		OrganizationID: tenant.OrganizationID,
		UserID:         tenant.UserID,
		TaskID:         taskID,
		Title:          req.Title,
		Description:    req.Description,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskChange(change.Task, change.Event))
}

// handleDeleteTask removes a task. Its events remain queryable.
func (h *Handler) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	taskID, ok := extractID(w, r, "id")
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(r.Context(), tenant.OrganizationID, taskID); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
