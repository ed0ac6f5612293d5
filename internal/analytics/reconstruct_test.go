package analytics_test

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/flowtrack/internal/analytics"
	"github.com/mtlprog/flowtrack/internal/domain"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func at(hours float64) time.Time {
	return t0.Add(time.Duration(hours * float64(time.Hour)))
}

func created(id, task, stage string, hours float64) *domain.Event {
	return &domain.Event{
		ID:        id,
		Type:      domain.EventTypeTaskCreated,
		TaskID:    task,
		ToStage:   domain.StagePtr(stage),
		Timestamp: at(hours),
	}
}

func moved(id, task, from, to string, hours float64) *domain.Event {
	return &domain.Event{
		ID:        id,
		Type:      domain.EventTypeStageChanged,
		TaskID:    task,
		FromStage: domain.StagePtr(from),
		ToStage:   domain.StagePtr(to),
		Timestamp: at(hours),
	}
}

func completed(id, task, stage string, hours float64) *domain.Event {
	return &domain.Event{
		ID:        id,
		Type:      domain.EventTypeTaskCompleted,
		TaskID:    task,
		ToStage:   domain.StagePtr(stage),
		Timestamp: at(hours),
	}
}

func TestReconstruct_SingleTaskExample(t *testing.T) {
	events := []*domain.Event{
		created("e1", "task-1", "Backlog", 0),
		moved("e2", "task-1", "Backlog", "In Progress", 10),
		completed("e3", "task-1", "In Progress", 34),
	}

	result := analytics.Reconstruct(events)

	require.Len(t, result.Stages, 2)
	assert.InDelta(t, 10.0, result.Stages["Backlog"].AverageHours, 1e-9)
	assert.Equal(t, 1, result.Stages["Backlog"].TaskCount)
	assert.InDelta(t, 24.0, result.Stages["In Progress"].AverageHours, 1e-9)
	assert.Equal(t, 1, result.Stages["In Progress"].TaskCount)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Clamped)

	ranked := analytics.RankBottlenecks(result.Stages)
	require.Len(t, ranked, 2)
	assert.Equal(t, "In Progress", ranked[0].Stage)
	assert.Equal(t, "Backlog", ranked[1].Stage)
}

func TestReconstruct_AveragesAcrossTasks(t *testing.T) {
	events := []*domain.Event{
		created("a1", "task-a", "Todo", 0),
		moved("a2", "task-a", "Todo", "Doing", 2),
		created("b1", "task-b", "Todo", 1),
		moved("b2", "task-b", "Todo", "Doing", 7),
		completed("b3", "task-b", "Doing", 9),
	}

	result := analytics.Reconstruct(events)

	assert.InDelta(t, 4.0, result.Stages["Todo"].AverageHours, 1e-9)
	assert.Equal(t, 2, result.Stages["Todo"].TaskCount)
	assert.InDelta(t, 2.0, result.Stages["Doing"].AverageHours, 1e-9)
	assert.Equal(t, 1, result.Stages["Doing"].TaskCount)
}

func TestReconstruct_InitialStageOnlySampledAtCompletion(t *testing.T) {
	open := []*domain.Event{created("e1", "task-1", "Backlog", 0)}

	result := analytics.Reconstruct(open)
	assert.Empty(t, result.Stages, "a task that never left its stage yields no sample")

	done := append(open, completed("e2", "task-1", "Backlog", 5))
	result = analytics.Reconstruct(done)
	require.Contains(t, result.Stages, "Backlog")
	assert.Equal(t, 1, result.Stages["Backlog"].TaskCount)
	assert.InDelta(t, 5.0, result.Stages["Backlog"].AverageHours, 1e-9)
}

func TestReconstruct_IsPureAndOrderIndependent(t *testing.T) {
	events := []*domain.Event{
		created("a1", "task-a", "Todo", 0),
		moved("a2", "task-a", "Todo", "Doing", 3),
		moved("a3", "task-a", "Doing", "Review", 8),
		completed("a4", "task-a", "Review", 9),
		created("b1", "task-b", "Todo", 2),
		moved("b2", "task-b", "Todo", "Doing", 2.5),
		moved("b3", "task-b", "Doing", "Todo", 4),
		moved("b4", "task-b", "Todo", "Doing", 6),
		completed("b5", "task-b", "Doing", 12),
	}
	original := append([]*domain.Event(nil), events...)

	first := analytics.Reconstruct(events)
	second := analytics.Reconstruct(events)
	assert.Equal(t, first, second)
	assert.Equal(t, original, events, "input slice must not be reordered")

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		shuffled := append([]*domain.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, first.Stages, analytics.Reconstruct(shuffled).Stages)
	}

	// Todo: 3 (a) + 0.5 + 2 (b) over three samples.
	assert.Equal(t, 3, first.Stages["Todo"].TaskCount)
	assert.InDelta(t, 5.5/3, first.Stages["Todo"].AverageHours, 1e-9)
}

func TestReconstruct_SkipsUnknownFromStage(t *testing.T) {
	events := []*domain.Event{
		created("e1", "task-1", "Backlog", 0),
		moved("e2", "task-1", "Renamed", "Done", 4),
		completed("e3", "task-1", "Done", 6),
	}

	result := analytics.Reconstruct(events)

	assert.NotContains(t, result.Stages, "Renamed")
	assert.NotContains(t, result.Stages, "Backlog")
	require.Contains(t, result.Stages, "Done", "to_stage is still entered after a skipped sample")
	assert.InDelta(t, 2.0, result.Stages["Done"].AverageHours, 1e-9)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, analytics.SkipUnknownFromStage, result.Skipped[0].Reason)
	assert.Equal(t, "e2", result.Skipped[0].EventID)
	assert.Equal(t, "Renamed", result.Skipped[0].Stage)
}

func TestReconstruct_ClockSkewNeverYieldsNegativeDurations(t *testing.T) {
	// The move out of Backlog was stamped by a clock two hours behind the
	// one that stamped the creation.
	events := []*domain.Event{
		created("e1", "task-1", "Backlog", 2),
		moved("e2", "task-1", "Backlog", "Doing", 0),
		completed("e3", "task-1", "Doing", 5),
	}

	result := analytics.Reconstruct(events)

	require.Len(t, result.Skipped, 1)
	assert.Equal(t, analytics.SkipUnknownFromStage, result.Skipped[0].Reason)
	assert.Equal(t, "e2", result.Skipped[0].EventID)
	assert.NotContains(t, result.Stages, "Backlog", "the exit sorted before its entry")
	require.Contains(t, result.Stages, "Doing")
	assert.InDelta(t, 5.0, result.Stages["Doing"].AverageHours, 1e-9)
	for stage, stat := range result.Stages {
		assert.GreaterOrEqual(t, stat.AverageHours, 0.0, stage)
	}
	assert.Empty(t, result.Clamped)
}

func TestDwell(t *testing.T) {
	tests := []struct {
		name        string
		entered     time.Time
		left        time.Time
		wantHours   float64
		wantClamped bool
	}{
		{"forward", at(0), at(10), 10, false},
		{"same instant", at(3), at(3), 0, false},
		{"skewed backwards", at(5), at(2), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hours, clamped := analytics.Dwell(tt.entered, tt.left)
			assert.InDelta(t, tt.wantHours, hours, 1e-9)
			assert.Equal(t, tt.wantClamped, clamped)
		})
	}
}

func TestReconstruct_ReplayedTransitionCountsOnce(t *testing.T) {
	events := []*domain.Event{
		created("e1", "task-1", "Backlog", 0),
		moved("e2", "task-1", "Backlog", "Doing", 1),
		moved("e3", "task-1", "Backlog", "Doing", 1),
	}

	result := analytics.Reconstruct(events)

	assert.Equal(t, 1, result.Stages["Backlog"].TaskCount)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, "e3", result.Skipped[0].EventID)
}

func TestReconstruct_CompletionWithoutEntryIsSkipped(t *testing.T) {
	events := []*domain.Event{
		completed("e1", "task-1", "Done", 3),
	}

	result := analytics.Reconstruct(events)

	assert.Empty(t, result.Stages)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, analytics.SkipCompletedStageNotEntered, result.Skipped[0].Reason)
}

func TestReconstruct_MissingToStageIsSkipped(t *testing.T) {
	events := []*domain.Event{
		{ID: "e1", Type: domain.EventTypeTaskCreated, TaskID: "task-1", Timestamp: at(0)},
	}

	result := analytics.Reconstruct(events)

	assert.Empty(t, result.Stages)
	require.Len(t, result.Skipped, 1)
	assert.Equal(t, analytics.SkipMissingToStage, result.Skipped[0].Reason)
}

func TestReconstruct_EqualTimestampsUseTypeRank(t *testing.T) {
	// Completion listed first with the same clock reading as creation.
	events := []*domain.Event{
		completed("e2", "task-1", "Backlog", 5),
		created("e1", "task-1", "Backlog", 5),
	}

	result := analytics.Reconstruct(events)

	require.Contains(t, result.Stages, "Backlog")
	assert.InDelta(t, 0.0, result.Stages["Backlog"].AverageHours, 1e-9)
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Clamped)
}

func TestReconstruct_IgnoresTaskUpdated(t *testing.T) {
	events := []*domain.Event{
		created("e1", "task-1", "Backlog", 0),
		{ID: "e2", Type: domain.EventTypeTaskUpdated, TaskID: "task-1", Timestamp: at(1)},
		completed("e3", "task-1", "Backlog", 2),
	}

	result := analytics.Reconstruct(events)

	assert.Equal(t, 1, result.Stages["Backlog"].TaskCount)
	assert.Empty(t, result.Skipped)
}
