package repository

import (
	"context"
	"fmt"
	"iter"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/flowtrack/internal/domain"
)

// eventColumns is the shared list of columns for event queries.
var eventColumns = []string{
	"id", "event_type", "organization_id", "user_id", "task_id", "workflow_id",
	"from_stage", "to_stage", "timestamp", "metadata",
}

// EventFilter selects events within one organization.
// OrganizationID is the tenant partition and is always required.
type EventFilter struct {
	OrganizationID string
	WorkflowID     string
	UserID         string
	TaskID         string
	FromStage      string
	ToStage        string
	EventTypes     []domain.EventType
	Since          *time.Time // inclusive
	Until          *time.Time // inclusive
}

// QueryOptions controls ordering and size of an event query.
type QueryOptions struct {
	Limit     int
	Ascending bool // default is newest first
}

// EventRepository is the append-only event store.
// It exposes no update or delete operation.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// scanEvent scans a single row into an Event struct.
func scanEvent(row pgx.Row) (*domain.Event, error) {
	var event domain.Event
	err := row.Scan(
		&event.ID,
		&event.Type,
		&event.OrganizationID,
		&event.UserID,
		&event.TaskID,
		&event.WorkflowID,
		&event.FromStage,
		&event.ToStage,
		&event.Timestamp,
		&event.Metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return &event, nil
}

// Append validates and persists an event, filling ID and Timestamp.
// The timestamp is assigned by the database and never moves backwards for a task.
func (r *EventRepository) Append(ctx context.Context, db DBTX, event *domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	query, args, err := psql.
		Insert("events").
		Columns(
			"event_type", "organization_id", "user_id", "task_id", "workflow_id",
			"from_stage", "to_stage", "metadata", "timestamp",
		).
		Values(
			event.Type,
			event.OrganizationID,
			event.UserID,
			event.TaskID,
			event.WorkflowID,
			event.FromStage,
			event.ToStage,
			metadata,
			sq.Expr(
				"GREATEST(clock_timestamp(), COALESCE((SELECT MAX(e.timestamp) FROM events e WHERE e.task_id = ?), '-infinity'::timestamptz))",
				event.TaskID,
			),
		).
		Suffix("RETURNING id, timestamp").
		ToSql()
	if err != nil {
		return fmt.Errorf("build Append query for event: %w", err)
	}

	if err := db.QueryRow(ctx, query, args...).Scan(&event.ID, &event.Timestamp); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	event.Metadata = metadata

	return nil
}

// AppendImported appends an event for a task that has no record in the
// organization, such as history imported from another tracker. Appends for
// the same task id are serialized with a transaction-scoped advisory lock.
// Tasks with a record only change through TaskService, which keeps the
// record and its log in step; for those ErrTaskManaged is returned.
func (r *EventRepository) AppendImported(ctx context.Context, event *domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", event.TaskID); err != nil {
		return fmt.Errorf("lock task %s: %w", event.TaskID, err)
	}

	query, args, err := psql.
		Select().
		Column(sq.Expr(
			"EXISTS (SELECT 1 FROM tasks WHERE id = ? AND organization_id = ?)",
			event.TaskID, event.OrganizationID,
		)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build task existence query: %w", err)
	}

	var managed bool
	if err := tx.QueryRow(ctx, query, args...).Scan(&managed); err != nil {
		return fmt.Errorf("check task %s: %w", event.TaskID, err)
	}
	if managed {
		return domain.ErrTaskManaged
	}

	if err := r.Append(ctx, tx, event); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// buildEventQuery translates a filter into a SELECT over the events table.
func buildEventQuery(filter EventFilter, opts QueryOptions) (sq.SelectBuilder, error) {
	if filter.OrganizationID == "" {
		return sq.SelectBuilder{}, fmt.Errorf("%w: organization_id is required", domain.ErrValidation)
	}

	qb := psql.Select(eventColumns...).From("events").
		Where(sq.Eq{"organization_id": filter.OrganizationID})

	if filter.WorkflowID != "" {
		qb = qb.Where(sq.Eq{"workflow_id": filter.WorkflowID})
	}
	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"user_id": filter.UserID})
	}
	if filter.TaskID != "" {
		qb = qb.Where(sq.Eq{"task_id": filter.TaskID})
	}
	if filter.FromStage != "" {
		qb = qb.Where(sq.Eq{"from_stage": filter.FromStage})
	}
	if filter.ToStage != "" {
		qb = qb.Where(sq.Eq{"to_stage": filter.ToStage})
	}
	if len(filter.EventTypes) > 0 {
		for _, t := range filter.EventTypes {
			if !t.IsValid() {
				return sq.SelectBuilder{}, fmt.Errorf("%w: invalid event type %q", domain.ErrValidation, t)
			}
		}
		qb = qb.Where(sq.Eq{"event_type": filter.EventTypes})
	}
	if filter.Since != nil {
		qb = qb.Where(sq.GtOrEq{"timestamp": *filter.Since})
	}
	if filter.Until != nil {
		qb = qb.Where(sq.LtOrEq{"timestamp": *filter.Until})
	}

	if opts.Ascending {
		qb = qb.OrderBy("timestamp ASC", "id ASC")
	} else {
		qb = qb.OrderBy("timestamp DESC", "id DESC")
	}

	if opts.Limit > 0 {
		qb = qb.Limit(uint64(opts.Limit))
	}

	return qb, nil
}

// Query returns a lazy sequence of events matching the filter.
// Rows are streamed from the database as the sequence is consumed.
func (r *EventRepository) Query(ctx context.Context, filter EventFilter, opts QueryOptions) iter.Seq2[*domain.Event, error] {
	return func(yield func(*domain.Event, error) bool) {
		qb, err := buildEventQuery(filter, opts)
		if err != nil {
			yield(nil, err)
			return
		}

		query, args, err := qb.ToSql()
		if err != nil {
			yield(nil, fmt.Errorf("build Query for events: %w", err))
			return
		}

		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("query events: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			event, err := scanEvent(rows)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(event, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("iterate event rows: %w", err))
		}
	}
}

// CollectEvents drains an event sequence into a slice, stopping at the first error.
func CollectEvents(seq iter.Seq2[*domain.Event, error]) ([]*domain.Event, error) {
	events := []*domain.Event{}
	for event, err := range seq {
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

// ForStageAnalytics loads the creation, stage change and completion events of one workflow.
func (r *EventRepository) ForStageAnalytics(ctx context.Context, workflowID, organizationID string) ([]*domain.Event, error) {
	if workflowID == "" {
		return nil, fmt.Errorf("%w: workflow_id is required", domain.ErrValidation)
	}

	return CollectEvents(r.Query(ctx, EventFilter{
		OrganizationID: organizationID,
		WorkflowID:     workflowID,
		EventTypes: []domain.EventType{
			domain.EventTypeTaskCreated,
			domain.EventTypeStageChanged,
			domain.EventTypeTaskCompleted,
		},
	}, QueryOptions{Ascending: true}))
}

// CountSince counts events of one type with timestamp >= since.
func (r *EventRepository) CountSince(
	ctx context.Context,
	organizationID string,
	eventType domain.EventType,
	since time.Time,
) (int, error) {
	query, args, err := psql.
		Select("COUNT(*)").
		From("events").
		Where(sq.Eq{
			"organization_id": organizationID,
			"event_type":      eventType,
		}).
		Where(sq.GtOrEq{"timestamp": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build CountSince query: %w", err)
	}

	var count int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count %s events: %w", eventType, err)
	}

	return count, nil
}

// CompletionTimes returns the timestamps of task_completed events in an optional inclusive range.
func (r *EventRepository) CompletionTimes(ctx context.Context, organizationID string, start, end *time.Time) ([]time.Time, error) {
	qb := psql.Select("timestamp").From("events").
		Where(sq.Eq{
			"organization_id": organizationID,
			"event_type":      domain.EventTypeTaskCompleted,
		})
	if start != nil {
		qb = qb.Where(sq.GtOrEq{"timestamp": *start})
	}
	if end != nil {
		qb = qb.Where(sq.LtOrEq{"timestamp": *end})
	}

	query, args, err := qb.OrderBy("timestamp ASC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build CompletionTimes query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query completion times: %w", err)
	}

	times, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	if err != nil {
		return nil, fmt.Errorf("collect completion times: %w", err)
	}

	return times, nil
}

// Organizations lists every organization that owns tasks or events.
func (r *EventRepository) Organizations(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT organization_id::text FROM events
		UNION
		SELECT organization_id::text FROM tasks
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query organizations: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect organizations: %w", err)
	}

	return ids, nil
}
