package service_test

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/repository"
	"github.com/mtlprog/flowtrack/internal/search"
)

type recordingMirror struct {
	mu        sync.Mutex
	tasks     []*domain.Task
	events    []*domain.Event
	removed   []string
	removedAt []time.Time
}

func (m *recordingMirror) MirrorTask(task *domain.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)
}

func (m *recordingMirror) MirrorEvent(event *domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *recordingMirror) RemoveTask(_, taskID string, version time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, taskID)
	m.removedAt = append(m.removedAt, version)
}

// memoryEventStore keeps events in a slice and assigns ids and timestamps.
type memoryEventStore struct {
	mu        sync.Mutex
	events    []*domain.Event
	lastQuery struct {
		filter repository.EventFilter
		opts   repository.QueryOptions
	}
	queryErr error
	now      time.Time
	managed  map[string]bool // task ids with a record
}

func (s *memoryEventStore) AppendImported(_ context.Context, event *domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.managed[event.TaskID] {
		return domain.ErrTaskManaged
	}
	event.ID = "evt-" + string(rune('a'+len(s.events)))
	event.Timestamp = s.now
	s.events = append(s.events, event)
	return nil
}

func (s *memoryEventStore) Query(_ context.Context, filter repository.EventFilter, opts repository.QueryOptions) iter.Seq2[*domain.Event, error] {
	s.mu.Lock()
	s.lastQuery.filter = filter
	s.lastQuery.opts = opts
	events := append([]*domain.Event(nil), s.events...)
	queryErr := s.queryErr
	s.mu.Unlock()

	return func(yield func(*domain.Event, error) bool) {
		if queryErr != nil {
			yield(nil, queryErr)
			return
		}
		for _, event := range events {
			if filter.TaskID != "" && event.TaskID != filter.TaskID {
				continue
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

type fakeIndex struct {
	taskHits  []search.TaskHit
	events    []*domain.Event
	aggs      *search.Aggregations
	err       error
	lastQuery search.EventQuery
}

func (f *fakeIndex) SearchTasks(context.Context, string, string) ([]search.TaskHit, error) {
	return f.taskHits, f.err
}

func (f *fakeIndex) SearchEvents(_ context.Context, _ string, q search.EventQuery) ([]*domain.Event, error) {
	f.lastQuery = q
	return f.events, f.err
}

func (f *fakeIndex) Aggregate(context.Context, string, search.AggregateQuery) (*search.Aggregations, error) {
	return f.aggs, f.err
}

type fakeTextSearcher struct {
	tasks     []*domain.Task
	lastText  string
	lastLimit int
}

func (f *fakeTextSearcher) SearchText(_ context.Context, _, text string, limit int) ([]*domain.Task, error) {
	f.lastText = text
	f.lastLimit = limit
	return f.tasks, nil
}
