package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mtlprog/flowtrack/internal/analytics"
	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/metrics"
	"github.com/mtlprog/flowtrack/internal/repository"
)

// Dashboard creation windows are fixed spans, not calendar days, so a DST
// change inside the window does not stretch or shrink it.
const (
	dashboardWeek  = 7 * 24 * time.Hour
	dashboardMonth = 30 * 24 * time.Hour
)

// AnalyticsEventStore is the read side of the event log used for analytics.
type AnalyticsEventStore interface {
	ForStageAnalytics(ctx context.Context, workflowID, organizationID string) ([]*domain.Event, error)
	CountSince(ctx context.Context, organizationID string, eventType domain.EventType, since time.Time) (int, error)
	CompletionTimes(ctx context.Context, organizationID string, start, end *time.Time) ([]time.Time, error)
}

// TaskCounter counts tasks by current status.
type TaskCounter interface {
	CountByStatus(ctx context.Context, organizationID string) (*repository.TaskStatusCounts, error)
}

// WorkflowLookup resolves a workflow within an organization.
type WorkflowLookup interface {
	GetByID(ctx context.Context, organizationID, workflowID string) (*domain.Workflow, error)
}

// DashboardStats is the organization overview.
type DashboardStats struct {
	TotalTasks      int `json:"totalTasks"`
	ActiveTasks     int `json:"activeTasks"`
	CompletedTasks  int `json:"completedTasks"`
	TasksLast7Days  int `json:"tasksLast7Days"`
	TasksLast30Days int `json:"tasksLast30Days"`
}

// AnalyticsService derives read-only analytics from the event log.
type AnalyticsService struct {
	events    AnalyticsEventStore
	tasks     TaskCounter
	workflows WorkflowLookup
	now       func() time.Time
}

// AnalyticsOption configures an AnalyticsService.
type AnalyticsOption func(*AnalyticsService)

// WithClock replaces the wall clock used for dashboard windows.
func WithClock(now func() time.Time) AnalyticsOption {
	return func(s *AnalyticsService) { s.now = now }
}

// NewAnalyticsService creates a new AnalyticsService.
func NewAnalyticsService(
	events AnalyticsEventStore,
	tasks TaskCounter,
	workflows WorkflowLookup,
	opts ...AnalyticsOption,
) *AnalyticsService {
	s := &AnalyticsService{
		events:    events,
		tasks:     tasks,
		workflows: workflows,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeStageAverages returns the average dwell time per stage of one workflow.
// Stages with no observed sample are absent from the result.
func (s *AnalyticsService) ComputeStageAverages(
	ctx context.Context,
	organizationID, workflowID string,
) (map[string]analytics.StageStat, error) {
	if _, err := s.workflows.GetByID(ctx, organizationID, workflowID); err != nil {
		return nil, err
	}

	events, err := s.events.ForStageAnalytics(ctx, workflowID, organizationID)
	if err != nil {
		return nil, fmt.Errorf("load workflow events: %w", err)
	}

	result := analytics.Reconstruct(events)
	report(organizationID, workflowID, result)

	return result.Stages, nil
}

// report logs and counts the samples Reconstruct could not use.
func report(organizationID, workflowID string, result analytics.Result) {
	for _, skip := range result.Skipped {
		metrics.ReconstructionSkipped.WithLabelValues(string(skip.Reason)).Inc()
		slog.Warn("stage duration sample skipped",
			"organization_id", organizationID,
			"workflow_id", workflowID,
			"task_id", skip.TaskID,
			"event_id", skip.EventID,
			"stage", skip.Stage,
			"reason", skip.Reason,
		)
	}
	for _, clamp := range result.Clamped {
		metrics.ReconstructionClamped.Inc()
		slog.Warn("negative stage duration clamped",
			"organization_id", organizationID,
			"workflow_id", workflowID,
			"task_id", clamp.TaskID,
			"event_id", clamp.EventID,
			"stage", clamp.Stage,
			"hours", clamp.Hours,
		)
	}
}

// DetectBottlenecks ranks the workflow's stages by descending average dwell time.
func (s *AnalyticsService) DetectBottlenecks(
	ctx context.Context,
	organizationID, workflowID string,
) ([]analytics.Bottleneck, error) {
	stages, err := s.ComputeStageAverages(ctx, organizationID, workflowID)
	if err != nil {
		return nil, err
	}
	return analytics.RankBottlenecks(stages), nil
}

// GetDashboardStats returns current task counts and recent creation counts.
// The status counts and both creation windows are queried concurrently.
func (s *AnalyticsService) GetDashboardStats(ctx context.Context, organizationID string) (*DashboardStats, error) {
	now := s.now()
	stats := &DashboardStats{}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := s.tasks.CountByStatus(ctx, organizationID)
		if err != nil {
			return fmt.Errorf("count tasks: %w", err)
		}
		stats.TotalTasks = counts.Total
		stats.ActiveTasks = counts.Active
		stats.CompletedTasks = counts.Completed
		return nil
	})

	g.Go(func() error {
		count, err := s.events.CountSince(ctx, organizationID, domain.EventTypeTaskCreated, now.Add(-dashboardWeek))
		if err != nil {
			return fmt.Errorf("count tasks created in 7 days: %w", err)
		}
		stats.TasksLast7Days = count
		return nil
	})

	g.Go(func() error {
		count, err := s.events.CountSince(ctx, organizationID, domain.EventTypeTaskCreated, now.Add(-dashboardMonth))
		if err != nil {
			return fmt.Errorf("count tasks created in 30 days: %w", err)
		}
		stats.TasksLast30Days = count
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return stats, nil
}

// GetCompletionTimeline counts completions per UTC day or ISO week within an
// optional inclusive range. Buckets without completions are omitted.
func (s *AnalyticsService) GetCompletionTimeline(
	ctx context.Context,
	organizationID string,
	start, end *time.Time,
	groupBy analytics.GroupBy,
) ([]analytics.TimelinePoint, error) {
	groupBy, err := analytics.ParseGroupBy(string(groupBy))
	if err != nil {
		return nil, err
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, fmt.Errorf("%w: end date is before start date", domain.ErrValidation)
	}

	times, err := s.events.CompletionTimes(ctx, organizationID, start, end)
	if err != nil {
		return nil, fmt.Errorf("load completion times: %w", err)
	}

	return analytics.BucketCompletions(times, groupBy), nil
}
