package handler

import (
	"net/http"

	"github.com/mtlprog/flowtrack/internal/analytics"
	"github.com/mtlprog/flowtrack/internal/handler/dto"
)

// handleDashboard returns task counts for the organization.
func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	stats, err := h.analyticsService.GetDashboardStats(r.Context(), tenant.OrganizationID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

// handleStageDuration returns the average hours tasks spend in each stage.
func (h *Handler) handleStageDuration(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	workflowID, ok := extractID(w, r, "workflowId")
	if !ok {
		return
	}

	stages, err := h.analyticsService.ComputeStageAverages(r.Context(), tenant.OrganizationID, workflowID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if stages == nil {
		stages = map[string]analytics.StageStat{}
	}

	respondJSON(w, http.StatusOK, dto.StageDurationResponse{WorkflowID: workflowID, Stages: stages})
}

// handleBottlenecks ranks stages by average dwell time, slowest first.
func (h *Handler) handleBottlenecks(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	workflowID, ok := extractID(w, r, "workflowId")
	if !ok {
		return
	}

	ranked, err := h.analyticsService.DetectBottlenecks(r.Context(), tenant.OrganizationID, workflowID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.BottlenecksResponse{WorkflowID: workflowID, Bottlenecks: ranked})
}

// handleTasksCompleted returns completions per day or ISO week.
// Query: startDate, endDate, groupBy (day|week).
func (h *Handler) handleTasksCompleted(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	query := newQueryParams(r.URL.Query())
	start := query.Start("startDate")
	end := query.End("endDate")
	if err := query.Err(); err != nil {
		respondDomainError(w, err)
		return
	}

	groupBy, err := analytics.ParseGroupBy(query.String("groupBy"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	points, err := h.analyticsService.GetCompletionTimeline(r.Context(), tenant.OrganizationID, start, end, groupBy)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if points == nil {
		points = []analytics.TimelinePoint{}
	}

	respondJSON(w, http.StatusOK, dto.TimelineResponse{GroupBy: string(groupBy), Points: points})
}
