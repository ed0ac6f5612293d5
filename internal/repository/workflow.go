package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mtlprog/flowtrack/internal/domain"
)

var workflowColumns = []string{"id", "organization_id", "name", "description", "stages", "created_by", "created_at"}

// WorkflowRepository handles database operations for workflows.
type WorkflowRepository struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(pool *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{pool: pool}
}

// scanWorkflow scans a single row into a Workflow, decoding the stages column.
func scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var workflow domain.Workflow
	var stagesJSON []byte

	err := row.Scan(
		&workflow.ID,
		&workflow.OrganizationID,
		&workflow.Name,
		&workflow.Description,
		&stagesJSON,
		&workflow.CreatedBy,
		&workflow.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if err := json.Unmarshal(stagesJSON, &workflow.Stages); err != nil {
		return nil, fmt.Errorf("parse stages: %w", err)
	}

	return &workflow, nil
}

// Create inserts a workflow. Stages are stored in order.
func (r *WorkflowRepository) Create(ctx context.Context, workflow *domain.Workflow) (*domain.Workflow, error) {
	stagesJSON, err := json.Marshal(workflow.Stages)
	if err != nil {
		return nil, fmt.Errorf("encode stages: %w", err)
	}

	query, args, err := psql.
		Insert("workflows").
		Columns("organization_id", "name", "description", "stages", "created_by").
		Values(workflow.OrganizationID, workflow.Name, workflow.Description, string(stagesJSON), workflow.CreatedBy).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build Create query for workflow: %w", err)
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&workflow.ID, &workflow.CreatedAt); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	return workflow, nil
}

// GetByID retrieves a workflow by ID within an organization.
func (r *WorkflowRepository) GetByID(ctx context.Context, organizationID, workflowID string) (*domain.Workflow, error) {
	query, args, err := psql.
		Select(workflowColumns...).
		From("workflows").
		Where(sq.Eq{"id": workflowID, "organization_id": organizationID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build GetByID query for workflow %s: %w", workflowID, err)
	}

	return scanWorkflow(r.pool.QueryRow(ctx, query, args...))
}

// List returns the workflows of an organization, newest first.
func (r *WorkflowRepository) List(ctx context.Context, organizationID string) ([]*domain.Workflow, error) {
	query, args, err := psql.
		Select(workflowColumns...).
		From("workflows").
		Where(sq.Eq{"organization_id": organizationID}).
		OrderBy("created_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build List query for workflows: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	workflows := []*domain.Workflow{}
	for rows.Next() {
		workflow, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, workflow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workflow rows: %w", err)
	}

	return workflows, nil
}
