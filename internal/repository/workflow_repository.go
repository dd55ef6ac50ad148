package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/database"
)

// WorkflowRepository manages workflow instances and their steps.
// Workflow + step creation is always done together in a single transaction.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

const workflowColumns = `id, entity_id, reference_id, reference_code, category,
	       amount, currency, department_id, status,
	       total_steps, current_step,
	       submitted_by, submitted_at, completed_at,
	       created_at, updated_at`

// Create inserts a workflow and its initial steps in one transaction.
func (r *WorkflowRepository) Create(ctx context.Context, wf *ApprovalWorkflow, steps []*ApprovalStep) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		wfQuery := `
			INSERT INTO approval_workflows
			    (entity_id, reference_id, reference_code, category,
			     amount, currency, department_id, status,
			     total_steps, current_step, submitted_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id, submitted_at, created_at, updated_at
		`

		err := tx.QueryRow(ctx, wfQuery,
			wf.EntityID,
			wf.ReferenceID,
			wf.ReferenceCode,
			wf.Category,
			wf.Amount,
			wf.Currency,
			wf.DepartmentID,
			wf.Status,
			wf.TotalSteps,
			wf.CurrentStep,
			wf.SubmittedBy,
		).Scan(&wf.ID, &wf.SubmittedAt, &wf.CreatedAt, &wf.UpdatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create approval workflow")
		}

		stepQuery := `
			INSERT INTO approval_steps
			    (workflow_id, entity_id, sequence_order,
			     approver_role, approver_role_ar, approver_user_id, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at
		`

		for _, step := range steps {
			step.WorkflowID = wf.ID
			step.EntityID = wf.EntityID

			err := tx.QueryRow(ctx, stepQuery,
				step.WorkflowID,
				step.EntityID,
				step.SequenceOrder,
				step.ApproverRole,
				step.ApproverRoleAr,
				step.ApproverUserID,
				step.Status,
			).Scan(&step.ID, &step.CreatedAt, &step.UpdatedAt)
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create approval step")
			}
		}

		return nil
	})
}

// GetByID retrieves a workflow by its primary key.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE id = $1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("approval_workflow", id)
	}
	return wf, err
}

// GetByReference returns the most recent workflow for a document, or nil when
// no workflow has been initiated yet.
func (r *WorkflowRepository) GetByReference(ctx context.Context, referenceID, category string) (*ApprovalWorkflow, error) {
	query := `
		SELECT ` + workflowColumns + `
		FROM approval_workflows
		WHERE reference_id = $1 AND category = $2
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, referenceID, category))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return wf, err
}

// AdvanceStep moves current_step forward, conditionally on the expected
// current step so two racing approvers cannot both advance.
func (r *WorkflowRepository) AdvanceStep(ctx context.Context, id string, expectedStep int) error {
	query := `
		UPDATE approval_workflows
		SET current_step = current_step + 1,
		    updated_at   = NOW()
		WHERE id = $1
		  AND current_step = $2
		  AND status = 'pending'
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, expectedStep).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.New(apperrors.CodeConflict, "workflow step already advanced by another actor")
	}
	return err
}

// Finish transitions a pending workflow to a terminal status and stamps
// completed_at. Conditional on status so terminal workflows stay terminal.
func (r *WorkflowRepository) Finish(ctx context.Context, id, status string, completedAt time.Time) error {
	query := `
		UPDATE approval_workflows
		SET status       = $2,
		    completed_at = $3,
		    updated_at   = NOW()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, completedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.New(apperrors.CodeConflict, "workflow is already in a terminal status")
	}
	return err
}

// ── scan helper ───────────────────────────────────────────────────────────────

type workflowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row workflowScanner) (*ApprovalWorkflow, error) {
	wf := &ApprovalWorkflow{}
	err := row.Scan(
		&wf.ID,
		&wf.EntityID,
		&wf.ReferenceID,
		&wf.ReferenceCode,
		&wf.Category,
		&wf.Amount,
		&wf.Currency,
		&wf.DepartmentID,
		&wf.Status,
		&wf.TotalSteps,
		&wf.CurrentStep,
		&wf.SubmittedBy,
		&wf.SubmittedAt,
		&wf.CompletedAt,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}
