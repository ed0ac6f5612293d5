package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/metrics"
	"github.com/mtlprog/flowtrack/internal/repository"
	"github.com/mtlprog/flowtrack/internal/search"
)

// IndexSearcher queries the secondary index.
type IndexSearcher interface {
	SearchTasks(ctx context.Context, organizationID, text string) ([]search.TaskHit, error)
	SearchEvents(ctx context.Context, organizationID string, q search.EventQuery) ([]*domain.Event, error)
	Aggregate(ctx context.Context, organizationID string, q search.AggregateQuery) (*search.Aggregations, error)
}

// TaskTextSearcher matches task text in the primary store.
type TaskTextSearcher interface {
	SearchText(ctx context.Context, organizationID, text string, limit int) ([]*domain.Task, error)
}

// TaskSearchResult holds task matches. Degraded is set when the index was
// unavailable and results came from substring matching in the primary store.
type TaskSearchResult struct {
	Hits     []search.TaskHit
	Degraded bool
}

// EventSearchResult holds event matches. Degraded is set when the index was
// unavailable and results came from the event store.
type EventSearchResult struct {
	Events   []*domain.Event
	Degraded bool
}

// SearchService answers search queries from the index and falls back to the
// primary store when the index cannot be reached.
type SearchService struct {
	index  IndexSearcher
	tasks  TaskTextSearcher
	events EventStore
}

// NewSearchService creates a new SearchService.
func NewSearchService(index IndexSearcher, tasks TaskTextSearcher, events EventStore) *SearchService {
	return &SearchService{index: index, tasks: tasks, events: events}
}

// SearchTasks runs a full-text query over task titles and descriptions.
func (s *SearchService) SearchTasks(ctx context.Context, organizationID, text string) (*TaskSearchResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: search query is required", domain.ErrValidation)
	}

	hits, err := s.index.SearchTasks(ctx, organizationID, text)
	if err == nil {
		return &TaskSearchResult{Hits: hits}, nil
	}
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		return nil, err
	}

	slog.Warn("task search degraded to primary store", "organization_id", organizationID, "error", err)
	metrics.SearchDegraded.WithLabelValues("tasks").Inc()

	tasks, err := s.tasks.SearchText(ctx, organizationID, text, search.TaskSearchSize)
	if err != nil {
		return nil, err
	}

	hits = make([]search.TaskHit, 0, len(tasks))
	for _, task := range tasks {
		hits = append(hits, search.TaskHit{Task: task})
	}
	return &TaskSearchResult{Hits: hits, Degraded: true}, nil
}

// SearchEvents filters events, newest first.
func (s *SearchService) SearchEvents(ctx context.Context, organizationID string, q search.EventQuery) (*EventSearchResult, error) {
	if q.EventType != "" && !q.EventType.IsValid() {
		return nil, fmt.Errorf("%w: invalid event type %q", domain.ErrValidation, q.EventType)
	}
	if q.Since != nil && q.Until != nil && q.Until.Before(*q.Since) {
		return nil, fmt.Errorf("%w: end date is before start date", domain.ErrValidation)
	}

	events, err := s.index.SearchEvents(ctx, organizationID, q)
	if err == nil {
		return &EventSearchResult{Events: events}, nil
	}
	if !errors.Is(err, domain.ErrIndexUnavailable) {
		return nil, err
	}

	slog.Warn("event search degraded to event store", "organization_id", organizationID, "error", err)
	metrics.SearchDegraded.WithLabelValues("events").Inc()

	filter := repository.EventFilter{
		OrganizationID: organizationID,
		WorkflowID:     q.WorkflowID,
		UserID:         q.UserID,
		TaskID:         q.TaskID,
		FromStage:      q.FromStage,
		ToStage:        q.ToStage,
		Since:          q.Since,
		Until:          q.Until,
	}
	if q.EventType != "" {
		filter.EventTypes = []domain.EventType{q.EventType}
	}

	events, err = repository.CollectEvents(s.events.Query(ctx, filter, repository.QueryOptions{Limit: q.EffectiveLimit()}))
	if err != nil {
		return nil, err
	}
	return &EventSearchResult{Events: events, Degraded: true}, nil
}

// Aggregate counts events by type, target stage and day. It needs the index
// and has no fallback.
func (s *SearchService) Aggregate(ctx context.Context, organizationID string, q search.AggregateQuery) (*search.Aggregations, error) {
	if q.Since != nil && q.Until != nil && q.Until.Before(*q.Since) {
		return nil, fmt.Errorf("%w: end date is before start date", domain.ErrValidation)
	}
	return s.index.Aggregate(ctx, organizationID, q)
}
