package handler

import (
	"net/http"

	"github.com/mtlprog/flowtrack/internal/handler/dto"
	"github.com/mtlprog/flowtrack/internal/service"
)

// handleCreateWorkflow creates a workflow with ordered stages.
// Stages without an explicit order take their list position.
func (h *Handler) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var req dto.CreateWorkflowRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	stages := make([]service.StageInput, len(req.Stages))
	for i, stage := range req.Stages {
		stages[i] = service.StageInput{Name: stage.Name, Order: stage.Order}
	}

	workflow, err := h.workflowService.CreateWorkflow(r.Context(), service.CreateWorkflowParams{
		OrganizationID: tenant.OrganizationID,
		UserID:         tenant.UserID,
		Name:           req.Name,
		Description:    req.Description,
		Stages:         stages,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.ToWorkflow(workflow))
}

// handleListWorkflows lists the organization's workflows, newest first.
func (h *Handler) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	workflows, err := h.workflowService.ListWorkflows(r.Context(), tenant.OrganizationID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToWorkflows(workflows))
}

// handleGetWorkflow returns one workflow.
func (h *Handler) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	workflowID, ok := extractID(w, r, "id")
	if !ok {
		return
	}

	workflow, err := h.workflowService.GetWorkflow(r.Context(), tenant.OrganizationID, workflowID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToWorkflow(workflow))
}
