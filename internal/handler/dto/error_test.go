package dto_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/handler/dto"
)

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"task not found", domain.ErrTaskNotFound, http.StatusNotFound, "TASK_NOT_FOUND"},
		{"workflow not found", fmt.Errorf("get workflow: %w", domain.ErrWorkflowNotFound), http.StatusNotFound, "WORKFLOW_NOT_FOUND"},
		{"generic not found", domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"completed", domain.ErrTaskCompleted, http.StatusConflict, "TASK_COMPLETED"},
		{"managed task", domain.ErrTaskManaged, http.StatusConflict, "TASK_MANAGED"},
		{"invalid stage", fmt.Errorf("%w: Deployed", domain.ErrInvalidStage), http.StatusUnprocessableEntity, "INVALID_STAGE"},
		{"validation", fmt.Errorf("%w: title is required", domain.ErrValidation), http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"index down", fmt.Errorf("%w: search: connection refused", domain.ErrIndexUnavailable), http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE"},
		{"unknown", errors.New("pool closed"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _ := dto.MapDomainError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
		})
	}
}

func TestMapDomainError_HidesInternalDetails(t *testing.T) {
	_, _, message := dto.MapDomainError(errors.New("dial tcp 10.0.0.7:5432: connection refused"))
	assert.Equal(t, "Internal server error", message)

	_, _, message = dto.MapDomainError(fmt.Errorf("%w: dial tcp 10.0.0.9:9200", domain.ErrIndexUnavailable))
	assert.NotContains(t, message, "10.0.0.9")
}
