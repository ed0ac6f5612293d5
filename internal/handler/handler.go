package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mtlprog/flowtrack/internal/handler/dto"
	"github.com/mtlprog/flowtrack/internal/indexsync"
	"github.com/mtlprog/flowtrack/internal/middleware"
	"github.com/mtlprog/flowtrack/internal/repository"
	"github.com/mtlprog/flowtrack/internal/service"
)

// maxBodyBytes bounds request bodies; descriptions are the largest field.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	pool             *pgxpool.Pool
	taskService      *service.TaskService
	workflowService  *service.WorkflowService
	eventService     *service.EventService
	analyticsService *service.AnalyticsService
	searchService    *service.SearchService
	tenant           *middleware.TenantMiddleware
}

// New creates a new Handler instance with all dependencies.
// The synchronizer mirrors writes to the search index and answers index queries.
func New(pool *pgxpool.Pool, syncer *indexsync.Synchronizer) *Handler {
	// Create repositories
	taskRepo := repository.NewTaskRepository(pool)
	workflowRepo := repository.NewWorkflowRepository(pool)
	eventRepo := repository.NewEventRepository(pool)

	return &Handler{
		pool:             pool,
		taskService:      service.NewTaskService(pool, taskRepo, workflowRepo, eventRepo, syncer),
		workflowService:  service.NewWorkflowService(workflowRepo),
		eventService:     service.NewEventService(eventRepo, syncer),
		analyticsService: service.NewAnalyticsService(eventRepo, taskRepo, workflowRepo),
		searchService:    service.NewSearchService(syncer, taskRepo, eventRepo),
		tenant:           middleware.NewTenantMiddleware(),
	}
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	routes := []struct {
		pattern string
		handle  http.HandlerFunc
	}{
		// Workflows
		{"POST /api/v1/workflows", h.handleCreateWorkflow},
		{"GET /api/v1/workflows", h.handleListWorkflows},
		{"GET /api/v1/workflows/{id}", h.handleGetWorkflow},

		// Tasks
		{"POST /api/v1/tasks", h.handleCreateTask},
		{"GET /api/v1/tasks", h.handleListTasks},
		{"GET /api/v1/tasks/{id}", h.handleGetTask},
		{"PATCH /api/v1/tasks/{id}", h.handleUpdateTask},
		{"PATCH /api/v1/tasks/{id}/stage", h.handleChangeStage},
		{"PATCH /api/v1/tasks/{id}/complete", h.handleCompleteTask},
		{"DELETE /api/v1/tasks/{id}", h.handleDeleteTask},

		// Events
		{"GET /api/v1/events", h.handleQueryEvents},
		{"POST /api/v1/events", h.handleAppendEvent},
		{"GET /api/v1/events/task/{taskId}", h.handleTaskHistory},

		// Analytics
		{"GET /api/v1/analytics/dashboard", h.handleDashboard},
		{"GET /api/v1/analytics/workflow/{workflowId}/stage-duration", h.handleStageDuration},
		{"GET /api/v1/analytics/workflow/{workflowId}/bottlenecks", h.handleBottlenecks},
		{"GET /api/v1/analytics/tasks-completed", h.handleTasksCompleted},

		// Search
		{"GET /api/v1/search/tasks", h.handleSearchTasks},
		{"GET /api/v1/search/events", h.handleSearchEvents},
		{"GET /api/v1/search/aggregations", h.handleAggregations},
	}
	for _, route := range routes {
		mux.Handle(route.pattern, h.tenant.Require(route.handle))
	}
}

// handleHealthz returns 200 OK if the database is reachable.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.pool.Ping(ctx); err != nil {
		slog.Error("database health check failed", "error", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// Ping checks if the database is reachable (used for testing).
func (h *Handler) Ping(ctx context.Context) error {
	return h.pool.Ping(ctx)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a standard error response.
func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, dto.NewErrorResponse(code, message))
}

// respondDomainError maps a service error to its HTTP response.
func respondDomainError(w http.ResponseWriter, err error) {
	status, code, message := dto.MapDomainError(err)
	respondError(w, status, code, message)
}

// decodeJSON reads a bounded JSON body. On failure the error response is already sent.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return false
	}
	return true
}

// tenantFrom returns the caller identity set by the tenant middleware.
func tenantFrom(w http.ResponseWriter, r *http.Request) (middleware.Tenant, bool) {
	tenant, ok := middleware.GetTenantFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required")
	}
	return tenant, ok
}

// extractID extracts and validates a UUID path parameter.
// Returns (id, true) if valid, ("", false) if invalid (error already sent to client).
func extractID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := r.PathValue(name)
	if value == "" {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", name+" is required")
		return "", false
	}

	id, err := uuid.Parse(value)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_REQUEST", name+" must be a valid UUID")
		return "", false
	}

	return id.String(), true
}
