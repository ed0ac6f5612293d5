package dto

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mtlprog/flowtrack/internal/domain"
)

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorResponse creates a new error response.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

// MapDomainError maps domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code string, message string) {
	message = err.Error()

	switch {
	// Lookup errors
	case errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound, "TASK_NOT_FOUND", message
	case errors.Is(err, domain.ErrWorkflowNotFound):
		return http.StatusNotFound, "WORKFLOW_NOT_FOUND", message
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", message

	// State errors
	case errors.Is(err, domain.ErrTaskCompleted):
		return http.StatusConflict, "TASK_COMPLETED", message
	case errors.Is(err, domain.ErrTaskManaged):
		return http.StatusConflict, "TASK_MANAGED", message

	// Validation errors
	case errors.Is(err, domain.ErrInvalidStage):
		return http.StatusUnprocessableEntity, "INVALID_STAGE", message
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", message

	// Secondary index
	case errors.Is(err, domain.ErrIndexUnavailable):
		return http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search index is not available"

	default:
		slog.Error("unmapped domain error returned to client",
			"error", err,
			"error_type", fmt.Sprintf("%T", err),
		)
		return http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error"
	}
}
