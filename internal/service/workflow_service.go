package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mtlprog/flowtrack/internal/domain"
	"github.com/mtlprog/flowtrack/internal/repository"
)

// StageInput is a stage as submitted by a client. A nil Order means list position.
type StageInput struct {
	Name  string
	Order *int
}

// CreateWorkflowParams holds the input of CreateWorkflow.
type CreateWorkflowParams struct {
	OrganizationID string
	UserID         string
	Name           string
	Description    string
	Stages         []StageInput
}

// WorkflowService manages workflow definitions.
type WorkflowService struct {
	workflowRepo *repository.WorkflowRepository
}

// NewWorkflowService creates a new WorkflowService.
func NewWorkflowService(workflowRepo *repository.WorkflowRepository) *WorkflowService {
	return &WorkflowService{workflowRepo: workflowRepo}
}

// BuildStages assigns list positions to stages without an explicit order,
// then validates and sorts them.
func BuildStages(inputs []StageInput) ([]domain.Stage, error) {
	stages := make([]domain.Stage, len(inputs))
	for i, input := range inputs {
		order := i
		if input.Order != nil {
			order = *input.Order
		}
		stages[i] = domain.Stage{Name: input.Name, Order: order}
	}
	return domain.NormalizeStages(stages)
}

// CreateWorkflow validates and stores a workflow.
func (s *WorkflowService) CreateWorkflow(ctx context.Context, params CreateWorkflowParams) (*domain.Workflow, error) {
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: workflow name is required", domain.ErrValidation)
	}

	stages, err := BuildStages(params.Stages)
	if err != nil {
		return nil, err
	}

	workflow, err := s.workflowRepo.Create(ctx, &domain.Workflow{
		OrganizationID: params.OrganizationID,
		Name:           name,
		Description:    params.Description,
		Stages:         stages,
		CreatedBy:      params.UserID,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("workflow created",
		"workflow_id", workflow.ID,
		"organization_id", workflow.OrganizationID,
		"stages", len(workflow.Stages),
	)

	return workflow, nil
}

// GetWorkflow returns one workflow of the organization.
func (s *WorkflowService) GetWorkflow(ctx context.Context, organizationID, workflowID string) (*domain.Workflow, error) {
	return s.workflowRepo.GetByID(ctx, organizationID, workflowID)
}

// ListWorkflows returns the organization's workflows, newest first.
func (s *WorkflowService) ListWorkflows(ctx context.Context, organizationID string) ([]*domain.Workflow, error) {
	return s.workflowRepo.List(ctx, organizationID)
}
