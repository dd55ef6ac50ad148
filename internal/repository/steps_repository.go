package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/database"
)

// StepRepository handles reads and updates on individual approval steps.
// Step creation is handled by WorkflowRepository.Create (transactionally).
type StepRepository struct {
	db *database.DB
}

// NewStepRepository creates a new StepRepository.
func NewStepRepository(db *database.DB) *StepRepository {
	return &StepRepository{db: db}
}

const stepColumns = `id, workflow_id, entity_id, sequence_order,
	       approver_role, approver_role_ar, approver_user_id,
	       status, comments, acted_by, acted_at,
	       created_at, updated_at`

// GetByWorkflowID returns all steps for a workflow ordered by sequence_order.
func (r *StepRepository) GetByWorkflowID(ctx context.Context, workflowID string) ([]*ApprovalStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM approval_steps
		WHERE workflow_id = $1
		ORDER BY sequence_order ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get approval steps")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetStep returns the step at the given sequence_order within a workflow.
func (r *StepRepository) GetStep(ctx context.Context, workflowID string, sequenceOrder int) (*ApprovalStep, error) {
	query := `
		SELECT ` + stepColumns + `
		FROM approval_steps
		WHERE workflow_id = $1 AND sequence_order = $2
	`

	step, err := r.scanStep(r.db.QueryRow(ctx, query, workflowID, sequenceOrder))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("approval_step", workflowID)
	}
	return step, err
}

// GetPendingForRoles returns current pending steps whose required role is one
// of roles, within an entity. Only steps at the workflow's current position
// are returned.
func (r *StepRepository) GetPendingForRoles(ctx context.Context, entityID string, roles []string) ([]*ApprovalStep, error) {
	if len(roles) == 0 {
		return nil, nil
	}

	query := `
		SELECT s.id, s.workflow_id, s.entity_id, s.sequence_order,
		       s.approver_role, s.approver_role_ar, s.approver_user_id,
		       s.status, s.comments, s.acted_by, s.acted_at,
		       s.created_at, s.updated_at
		FROM approval_steps s
		JOIN approval_workflows w ON w.id = s.workflow_id
		WHERE s.entity_id = $1
		  AND s.status = 'pending'
		  AND w.status = 'pending'
		  AND s.sequence_order = w.current_step
		  AND s.approver_role = ANY($2)
		ORDER BY s.created_at ASC
	`

	rows, err := r.db.Query(ctx, query, entityID, roles)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// RecordAction records the outcome of an approval action. The update is
// conditional on the step still being pending so a second concurrent actor
// receives a conflict instead of double-applying.
func (r *StepRepository) RecordAction(ctx context.Context, id, status, actedBy string, comments *string) error {
	query := `
		UPDATE approval_steps
		SET status     = $2,
		    acted_by   = $3,
		    acted_at   = NOW(),
		    comments   = $4,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, actedBy, comments).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.New(apperrors.CodeConflict, "step has already been acted on")
	}
	return err
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type stepScanner interface {
	Scan(dest ...any) error
}

func (r *StepRepository) scanStep(row stepScanner) (*ApprovalStep, error) {
	s := &ApprovalStep{}
	err := row.Scan(
		&s.ID,
		&s.WorkflowID,
		&s.EntityID,
		&s.SequenceOrder,
		&s.ApproverRole,
		&s.ApproverRoleAr,
		&s.ApproverUserID,
		&s.Status,
		&s.Comments,
		&s.ActedBy,
		&s.ActedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *StepRepository) scanRows(rows pgx.Rows) ([]*ApprovalStep, error) {
	var steps []*ApprovalStep
	for rows.Next() {
		s, err := r.scanStep(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan approval step")
		}
		steps = append(steps, s)
	}
	return steps, nil
}
