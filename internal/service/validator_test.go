package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtlprog/flowtrack/internal/domain"
)

func testWorkflow() *domain.Workflow {
	return &domain.Workflow{
		ID: "wf-1",
		Stages: []domain.Stage{
			{Name: "Backlog", Order: 0},
			{Name: "In Progress", Order: 1},
			{Name: "Done", Order: 2},
		},
	}
}

func TestCanChangeStage(t *testing.T) {
	active := &domain.Task{ID: "task-1", CurrentStage: "Backlog", Status: domain.TaskStatusActive}
	completed := &domain.Task{ID: "task-2", CurrentStage: "Done", Status: domain.TaskStatusCompleted}

	tests := []struct {
		name    string
		task    *domain.Task
		stage   string
		wantErr error
	}{
		{"valid move", active, "In Progress", nil},
		{"completed task", completed, "Backlog", domain.ErrTaskCompleted},
		{"unknown stage", active, "Archived", domain.ErrInvalidStage},
		{"same stage", active, "Backlog", domain.ErrValidation},
		{"empty stage", active, "", domain.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := canChangeStage(tt.task, testWorkflow(), tt.stage)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCanComplete(t *testing.T) {
	assert.NoError(t, canComplete(&domain.Task{Status: domain.TaskStatusActive}))
	assert.ErrorIs(t, canComplete(&domain.Task{Status: domain.TaskStatusCompleted}), domain.ErrTaskCompleted)
}

func TestResolveInitialStage(t *testing.T) {
	stage, err := resolveInitialStage(testWorkflow(), "")
	require.NoError(t, err)
	assert.Equal(t, "Backlog", stage)

	stage, err = resolveInitialStage(testWorkflow(), "Done")
	require.NoError(t, err)
	assert.Equal(t, "Done", stage)

	_, err = resolveInitialStage(testWorkflow(), "Nope")
	assert.ErrorIs(t, err, domain.ErrInvalidStage)

	_, err = resolveInitialStage(&domain.Workflow{ID: "empty"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidStage)
}

func TestValidateTitle(t *testing.T) {
	assert.NoError(t, validateTitle("Ship it"))
	assert.ErrorIs(t, validateTitle("   "), domain.ErrValidation)
	assert.NoError(t, validateTitle(strings.Repeat("ж", maxTitleLength)), "length counts runes")
	assert.ErrorIs(t, validateTitle(strings.Repeat("a", maxTitleLength+1)), domain.ErrValidation)
}

func TestBuildStages(t *testing.T) {
	order := func(n int) *int { return &n }

	stages, err := BuildStages([]StageInput{{Name: "Todo"}, {Name: "Doing"}, {Name: "Done"}})
	require.NoError(t, err)
	assert.Equal(t, []domain.Stage{{Name: "Todo", Order: 0}, {Name: "Doing", Order: 1}, {Name: "Done", Order: 2}}, stages)

	stages, err = BuildStages([]StageInput{{Name: "Done", Order: order(9)}, {Name: " Todo ", Order: order(1)}})
	require.NoError(t, err)
	assert.Equal(t, []domain.Stage{{Name: "Todo", Order: 1}, {Name: "Done", Order: 9}}, stages)

	_, err = BuildStages(nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = BuildStages([]StageInput{{Name: "Todo"}, {Name: "Todo"}})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = BuildStages([]StageInput{{Name: ""}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0, 50, 200))
	assert.Equal(t, 50, clampLimit(-1, 50, 200))
	assert.Equal(t, 10, clampLimit(10, 50, 200))
	assert.Equal(t, 200, clampLimit(500, 50, 200))
}
