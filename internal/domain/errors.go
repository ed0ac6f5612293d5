package domain

import (
	"errors"
	"fmt"
)

// Domain-specific errors for business logic validation.
var (
	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidStage = errors.New("invalid stage for workflow")

	// Lookup errors
	ErrNotFound         = errors.New("not found")
	ErrTaskNotFound     = fmt.Errorf("task %w", ErrNotFound)
	ErrWorkflowNotFound = fmt.Errorf("workflow %w", ErrNotFound)

	// State errors
	ErrTaskCompleted = errors.New("task already completed")
	ErrTaskManaged   = errors.New("task has a record; change it through the task endpoints")

	// Secondary index errors. Callers check for this to offer degraded search.
	ErrIndexUnavailable = errors.New("search index unavailable")
)
