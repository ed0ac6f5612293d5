package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mtlprog/flowtrack/internal/domain"
)

const (
	maxTitleLength       = 200
	maxDescriptionLength = 10000
)

// validateTitle requires a non-blank title of bounded length.
func validateTitle(title string) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return fmt.Errorf("%w: title is required", domain.ErrValidation)
	}
	if utf8.RuneCountInString(trimmed) > maxTitleLength {
		return fmt.Errorf("%w: title must be at most %d characters", domain.ErrValidation, maxTitleLength)
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return fmt.Errorf("%w: description must be at most %d characters", domain.ErrValidation, maxDescriptionLength)
	}
	return nil
}

// canChangeStage validates moving an active task to another stage of its workflow.
func canChangeStage(task *domain.Task, workflow *domain.Workflow, stage string) error {
	if task.IsCompleted() {
		return fmt.Errorf("%w: task %s", domain.ErrTaskCompleted, task.ID)
	}
	if stage == "" {
		return fmt.Errorf("%w: stage is required", domain.ErrValidation)
	}
	if !workflow.HasStage(stage) {
		return fmt.Errorf("%w: %q is not a stage of workflow %s", domain.ErrInvalidStage, stage, workflow.ID)
	}
	if stage == task.CurrentStage {
		return fmt.Errorf("%w: task %s is already in stage %q", domain.ErrValidation, task.ID, stage)
	}
	return nil
}

// canComplete rejects completing a task twice.
func canComplete(task *domain.Task) error {
	if task.IsCompleted() {
		return fmt.Errorf("%w: task %s", domain.ErrTaskCompleted, task.ID)
	}
	return nil
}

// resolveInitialStage picks the requested stage or the workflow's first stage.
func resolveInitialStage(workflow *domain.Workflow, requested string) (string, error) {
	if requested == "" {
		stage, ok := workflow.InitialStage()
		if !ok {
			return "", fmt.Errorf("%w: workflow %s has no stages", domain.ErrInvalidStage, workflow.ID)
		}
		return stage, nil
	}
	if !workflow.HasStage(requested) {
		return "", fmt.Errorf("%w: %q is not a stage of workflow %s", domain.ErrInvalidStage, requested, workflow.ID)
	}
	return requested, nil
}
