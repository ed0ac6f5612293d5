package search

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/flowtrack/internal/domain"
)

// roundTrip normalises a query body the way the cluster sees it.
func roundTrip(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestBuildTaskSearch(t *testing.T) {
	body := roundTrip(t, buildTaskSearch("org-1", "login bug"))

	assert.EqualValues(t, TaskSearchSize, body["size"])

	boolQuery := body["query"].(map[string]any)["bool"].(map[string]any)
	assert.Equal(t, []any{
		map[string]any{"term": map[string]any{"organizationId": "org-1"}},
	}, boolQuery["filter"])

	match := boolQuery["must"].([]any)[0].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "login bug", match["query"])
	assert.Equal(t, []any{"title^2", "description"}, match["fields"])
	assert.Equal(t, "best_fields", match["type"])
	assert.Equal(t, "AUTO", match["fuzziness"])

	fields := body["highlight"].(map[string]any)["fields"].(map[string]any)
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "description")
}

func TestBuildEventSearch(t *testing.T) {
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)

	tests := []struct {
		name        string
		query       EventQuery
		wantFilters []any
		wantSize    int
	}{
		{
			name:  "organization only",
			query: EventQuery{},
			wantFilters: []any{
				map[string]any{"term": map[string]any{"organizationId": "org-1"}},
			},
			wantSize: DefaultEventLimit,
		},
		{
			name: "every filter",
			query: EventQuery{
				EventType:  domain.EventTypeStageChanged,
				WorkflowID: "wf-1",
				UserID:     "user-1",
				TaskID:     "task-1",
				FromStage:  "Todo",
				ToStage:    "Done",
				Since:      &since,
				Until:      &until,
				Limit:      25,
			},
			wantFilters: []any{
				map[string]any{"term": map[string]any{"organizationId": "org-1"}},
				map[string]any{"term": map[string]any{"eventType": "stage_changed"}},
				map[string]any{"term": map[string]any{"workflowId": "wf-1"}},
				map[string]any{"term": map[string]any{"userId": "user-1"}},
				map[string]any{"term": map[string]any{"taskId": "task-1"}},
				map[string]any{"term": map[string]any{"fromStage": "Todo"}},
				map[string]any{"term": map[string]any{"toStage": "Done"}},
				map[string]any{"range": map[string]any{"timestamp": map[string]any{
					"gte": "2024-01-01T00:00:00Z",
					"lte": "2024-01-31T23:59:59Z",
				}}},
			},
			wantSize: 25,
		},
		{
			name:  "open ended range and capped limit",
			query: EventQuery{Since: &since, Limit: 5000},
			wantFilters: []any{
				map[string]any{"term": map[string]any{"organizationId": "org-1"}},
				map[string]any{"range": map[string]any{"timestamp": map[string]any{
					"gte": "2024-01-01T00:00:00Z",
				}}},
			},
			wantSize: MaxEventLimit,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := roundTrip(t, buildEventSearch("org-1", tt.query))

			filters := body["query"].(map[string]any)["bool"].(map[string]any)["filter"]
			assert.Equal(t, tt.wantFilters, filters)
			assert.EqualValues(t, tt.wantSize, body["size"])
			assert.Equal(t, []any{
				map[string]any{"timestamp": map[string]any{"order": "desc"}},
			}, body["sort"])
		})
	}
}

func TestBuildAggregation(t *testing.T) {
	body := roundTrip(t, buildAggregation("org-1", AggregateQuery{WorkflowID: "wf-1"}))

	assert.EqualValues(t, 0, body["size"])

	filters := body["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	assert.Len(t, filters, 2)

	aggs := body["aggs"].(map[string]any)
	byType := aggs["by_event_type"].(map[string]any)["terms"].(map[string]any)
	assert.Equal(t, "eventType", byType["field"])
	assert.EqualValues(t, 10, byType["size"])

	byStage := aggs["by_stage"].(map[string]any)["terms"].(map[string]any)
	assert.Equal(t, "toStage", byStage["field"])
	assert.EqualValues(t, 20, byStage["size"])

	histogram := aggs["events_over_time"].(map[string]any)["date_histogram"].(map[string]any)
	assert.Equal(t, "timestamp", histogram["field"])
	assert.Equal(t, "day", histogram["calendar_interval"])
}

func TestEventQuery_EffectiveLimit(t *testing.T) {
	assert.Equal(t, DefaultEventLimit, EventQuery{}.EffectiveLimit())
	assert.Equal(t, DefaultEventLimit, EventQuery{Limit: -3}.EffectiveLimit())
	assert.Equal(t, 1, EventQuery{Limit: 1}.EffectiveLimit())
	assert.Equal(t, MaxEventLimit, EventQuery{Limit: MaxEventLimit}.EffectiveLimit())
	assert.Equal(t, MaxEventLimit, EventQuery{Limit: MaxEventLimit + 1}.EffectiveLimit())
}
