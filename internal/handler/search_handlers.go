package handler

import (
	"net/http"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/handler/dto"
	"github.com/mtlprog/flowtrack/internal/search"
)

// handleSearchTasks runs a full-text search over task titles and descriptions.
// When the index is down the response is marked degraded.
func (h *Handler) handleSearchTasks(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	result, err := h.searchService.SearchTasks(r.Context(), tenant.OrganizationID, r.URL.Query().Get("q"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.ToTaskHits(result.Hits, result.Degraded))
}

// handleSearchEvents filters events across every indexed field.
func (h *Handler) handleSearchEvents(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	query := newQueryParams(r.URL.Query())
	q := search.EventQuery{
		EventType:  domain.EventType(query.String("eventType")),
		WorkflowID: query.UUID("workflowId"),
		UserID:     query.UUID("userId"),
		TaskID:     query.UUID("taskId"),
		FromStage:  query.String("fromStage"),
		ToStage:    query.String("toStage"),
		Since:      query.Start("startDate"),
		Until:      query.End("endDate"),
		Limit:      query.Int("limit"),
	}
	if err := query.Err(); err != nil {
		respondDomainError(w, err)
		return
	}

	result, err := h.searchService.SearchEvents(r.Context(), tenant.OrganizationID, q)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	events := dto.ToEvents(result.Events)
	respondJSON(w, http.StatusOK, dto.EventSearchResponse{
		Events:   events.Events,
		Count:    events.Count,
		Degraded: result.Degraded,
	})
}

// handleAggregations counts events by type, target stage and day.
// It has no fallback and answers 503 while the index is down.
func (h *Handler) handleAggregations(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	query := newQueryParams(r.URL.Query())
	q := search.AggregateQuery{
		WorkflowID: query.UUID("workflowId"),
		Since:      query.Start("startDate"),
		Until:      query.End("endDate"),
	}
	if err := query.Err(); err != nil {
		respondDomainError(w, err)
		return
	}

	aggs, err := h.searchService.Aggregate(r.Context(), tenant.OrganizationID, q)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, aggs)
}
