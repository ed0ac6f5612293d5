package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/handler/dto"
	"github.com/mtlprog/flowtrack/internal/repository"
)

// handleQueryEvents lists events newest first.
// Filters: workflowId, userId, taskId, eventType, startDate, endDate, limit.
func (h *Handler) handleQueryEvents(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	query := newQueryParams(r.URL.Query())
	filter := repository.EventFilter{
		OrganizationID: tenant.OrganizationID,
		WorkflowID:     query.UUID("workflowId"),
		UserID:         query.UUID("userId"),
		TaskID:         query.UUID("taskId"),
		Since:          query.Start("startDate"),
		Until:          query.End("endDate"),
	}
	if eventType := query.String("eventType"); eventType != "" {
		filter.EventTypes = []domain.EventType{domain.EventType(eventType)}
	}
	opts := repository.QueryOptions{Limit: query.Int("limit")}
	if err := query.Err(); err != nil {
		respondDomainError(w, err)
		return
	}

	events, err := h.eventService.QueryEvents(r.Context(), filter, opts)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToEvents(events))
}

// handleAppendEvent records a transition reported by an external system.
// Organization and user come from the caller's identity, never the body.
func (h *Handler) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req dto.AppendEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	taskID, err := uuid.Parse(strings.TrimSpace(req.TaskID))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "taskId must be a valid UUID")
		return
	}
	workflowID, err := uuid.Parse(strings.TrimSpace(req.WorkflowID))
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "workflowId must be a valid UUID")
		return
	}

	event, err := h.eventService.AppendEvent(r.Context(), &domain.Event{
		Type:           domain.EventType(req.EventType),
		OrganizationID: tenant.OrganizationID,
		UserID:         tenant.UserID,
		TaskID:         taskID.String(),
		WorkflowID:     workflowID.String(),
		FromStage:      req.FromStage,
		ToStage:        req.ToStage,
		Metadata:       req.Metadata,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.ToEvent(event))
}

// handleTaskHistory returns every event of a task in chronological order,
// including tasks that have since been deleted.
func (h *Handler) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	taskID, ok := extractID(w, r, "taskId")
	if !ok {
		return
	}

	events, err := h.eventService.TaskHistory(r.Context(), tenant.OrganizationID, taskID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToEvents(events))
}
