package service

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/repository"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventStore is the append-only log as seen by EventService.
type EventStore interface {
	AppendImported(ctx context.Context, event *domain.Event) error
	Query(ctx context.Context, filter repository.EventFilter, opts repository.QueryOptions) iter.Seq2[*domain.Event, error]
}

// EventService exposes the event log at the API boundary.
type EventService struct {
	events EventStore
	mirror Mirror
}

// NewEventService creates a new EventService.
func NewEventService(events EventStore, mirror Mirror) *EventService {
	return &EventService{events: events, mirror: mirror}
}

// AppendEvent records an event supplied by a caller, such as a transition
// imported from another tracker. The store assigns id and timestamp.
// Tasks with a record are rejected with domain.ErrTaskManaged: their stage
// and status only change through TaskService.
func (s *EventService) AppendEvent(ctx context.Context, event *domain.Event) (*domain.Event, error) {
	if err := s.events.AppendImported(ctx, event); err != nil {
		return nil, err
	}

	slog.Info("event appended",
		"event_id", event.ID,
		"event_type", event.Type,
		"task_id", event.TaskID,
		"organization_id", event.OrganizationID,
	)

	s.mirror.MirrorEvent(event)
	return event, nil
}

// QueryEvents returns matching events, newest first unless opts.Ascending is set.
// The limit defaults to 100 and is capped at 1000.
func (s *EventService) QueryEvents(
	ctx context.Context,
	filter repository.EventFilter,
	opts repository.QueryOptions,
) ([]*domain.Event, error) {
	opts.Limit = clampLimit(opts.Limit, defaultEventLimit, maxEventLimit)
	return repository.CollectEvents(s.events.Query(ctx, filter, opts))
}

// TaskHistory returns every event of one task in chronological order.
// It works for deleted tasks too, since the log outlives task records.
func (s *EventService) TaskHistory(ctx context.Context, organizationID, taskID string) ([]*domain.Event, error) {
	if taskID == "" {
		return nil, fmt.Errorf("%w: task_id is required", domain.ErrValidation)
	}
	return repository.CollectEvents(s.events.Query(ctx, repository.EventFilter{
		OrganizationID: organizationID,
		TaskID:         taskID,
	}, repository.QueryOptions{Ascending: true}))
}
