package search

import (
	"time"

	"github.com/mtlprog/flowtrack/internal/domain"
)

const (
	// TaskSearchSize caps full-text task results.
	TaskSearchSize = 50
	// DefaultEventLimit applies when an event query sets no limit.
	DefaultEventLimit = 100
	// MaxEventLimit caps the number of events a single query returns.
	MaxEventLimit = 1000
)

// EventQuery filters indexed events. Empty fields are not filtered on.
type EventQuery struct {
	EventType  domain.EventType
	WorkflowID string
	UserID     string
	TaskID     string
	FromStage  string
	ToStage    string
	Since      *time.Time // inclusive
	Until      *time.Time // inclusive
	Limit      int
}

// EffectiveLimit clamps Limit into [1, MaxEventLimit], defaulting to DefaultEventLimit.
func (q EventQuery) EffectiveLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultEventLimit
	case q.Limit > MaxEventLimit:
		return MaxEventLimit
	default:
		return q.Limit
	}
}

// AggregateQuery scopes the event aggregations.
type AggregateQuery struct {
	WorkflowID string
	Since      *time.Time
	Until      *time.Time
}

// TaskHit is one full-text match.
type TaskHit struct {
	Task       *domain.Task        `json:"task"`
	Score      float64             `json:"score"`
	Highlights map[string][]string `json:"highlights,omitempty"`
}

// Bucket is one aggregation bucket.
type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Aggregations summarises indexed events by type, target stage and day.
type Aggregations struct {
	EventTypes []Bucket `json:"eventTypes"`
	Stages     []Bucket `json:"stages"`
	Timeline   []Bucket `json:"timeline"`
}

func term(field, value string) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func timestampRange(since, until *time.Time) map[string]any {
	bounds := map[string]any{}
	if since != nil {
		bounds["gte"] = since.UTC().Format(time.RFC3339Nano)
	}
	if until != nil {
		bounds["lte"] = until.UTC().Format(time.RFC3339Nano)
	}
	return map[string]any{"range": map[string]any{"timestamp": bounds}}
}

// buildTaskSearch matches title and description within one organization.
func buildTaskSearch(organizationID, text string) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{term("organizationId", organizationID)},
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":     text,
							"fields":    []string{"title^2", "description"},
							"type":      "best_fields",
							"fuzziness": "AUTO",
						},
					},
				},
			},
		},
		"highlight": map[string]any{
			"fields": map[string]any{
				"title":       map[string]any{},
				"description": map[string]any{},
			},
		},
		"size": TaskSearchSize,
	}
}

func eventFilters(organizationID string, q EventQuery) []any {
	filters := []any{term("organizationId", organizationID)}

	for _, f := range []struct {
		field string
		value string
	}{
		{"eventType", string(q.EventType)},
		{"workflowId", q.WorkflowID},
		{"userId", q.UserID},
		{"taskId", q.TaskID},
		{"fromStage", q.FromStage},
		{"toStage", q.ToStage},
	} {
		if f.value != "" {
			filters = append(filters, term(f.field, f.value))
		}
	}

	if q.Since != nil || q.Until != nil {
		filters = append(filters, timestampRange(q.Since, q.Until))
	}

	return filters
}

// buildEventSearch filters events and returns the newest first.
func buildEventSearch(organizationID string, q EventQuery) map[string]any {
	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"filter": eventFilters(organizationID, q)},
		},
		"sort": []any{
			map[string]any{"timestamp": map[string]any{"order": "desc"}},
		},
		"size": q.EffectiveLimit(),
	}
}

// buildAggregation counts events by type, by target stage and per day.
func buildAggregation(organizationID string, q AggregateQuery) map[string]any {
	filters := []any{term("organizationId", organizationID)}
	if q.WorkflowID != "" {
		filters = append(filters, term("workflowId", q.WorkflowID))
	}
	if q.Since != nil || q.Until != nil {
		filters = append(filters, timestampRange(q.Since, q.Until))
	}

	return map[string]any{
		"query": map[string]any{
			"bool": map[string]any{"filter": filters},
		},
		"size": 0,
		"aggs": map[string]any{
			"by_event_type": map[string]any{
				"terms": map[string]any{"field": "eventType", "size": 10},
			},
			"by_stage": map[string]any{
				"terms": map[string]any{"field": "toStage", "size": 20},
			},
			"events_over_time": map[string]any{
				"date_histogram": map[string]any{
					"field":             "timestamp",
					"calendar_interval": "day",
					"format":            "yyyy-MM-dd",
				},
			},
		},
	}
}
