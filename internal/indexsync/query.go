package indexsync

import (
	"context"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/search"
)

// SearchTasks runs a full-text task query against the index.
func (s *Synchronizer) SearchTasks(ctx context.Context, organizationID, text string) ([]search.TaskHit, error) {
	if s.backend == nil {
		return nil, domain.ErrIndexUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	return s.backend.SearchTasks(ctx, organizationID, text)
}

// SearchEvents runs a filtered event query against the index.
func (s *Synchronizer) SearchEvents(ctx context.Context, organizationID string, q search.EventQuery) ([]*domain.Event, error) {
	if s.backend == nil {
		return nil, domain.ErrIndexUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	return s.backend.SearchEvents(ctx, organizationID, q)
}

// Aggregate runs the event aggregations against the index.
func (s *Synchronizer) Aggregate(ctx context.Context, organizationID string, q search.AggregateQuery) (*search.Aggregations, error) {
	if s.backend == nil {
		return nil, domain.ErrIndexUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OperationTimeout)
	defer cancel()

	return s.backend.Aggregate(ctx, organizationID, q)
}
