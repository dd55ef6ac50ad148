package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/database"
)

// ThresholdRepository handles CRUD for approval_thresholds.
type ThresholdRepository struct {
	db *database.DB
}

// NewThresholdRepository creates a new ThresholdRepository.
func NewThresholdRepository(db *database.DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

const thresholdColumns = `id, entity_id, module, min_amount, max_amount,
	       approver_role, approver_role_ar, sequence_order, is_active,
	       created_at, updated_at`

// Create inserts a new threshold.
func (r *ThresholdRepository) Create(ctx context.Context, t *ApprovalThreshold) error {
	query := `
		INSERT INTO approval_thresholds
		    (entity_id, module, min_amount, max_amount,
		     approver_role, approver_role_ar, sequence_order, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		t.EntityID,
		t.Module,
		t.MinAmount,
		t.MaxAmount,
		t.ApproverRole,
		t.ApproverRoleAr,
		t.SequenceOrder,
		t.IsActive,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
}

// GetByID retrieves a threshold by primary key.
func (r *ThresholdRepository) GetByID(ctx context.Context, id, entityID string) (*ApprovalThreshold, error) {
	query := `
		SELECT ` + thresholdColumns + `
		FROM approval_thresholds
		WHERE id = $1 AND entity_id = $2
	`

	t, err := r.scanThreshold(r.db.QueryRow(ctx, query, id, entityID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("approval_threshold", id)
	}
	return t, err
}

// List returns all thresholds for an entity, optionally filtered to a module
// and to active rows only. Ordered by module, then sequence_order.
func (r *ThresholdRepository) List(ctx context.Context, entityID, module string, activeOnly bool) ([]*ApprovalThreshold, error) {
	query := `
		SELECT ` + thresholdColumns + `
		FROM approval_thresholds
		WHERE entity_id = $1
	`
	args := []any{entityID}
	if module != "" {
		query += " AND module = $2"
		args = append(args, module)
	}
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY module ASC, sequence_order ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list approval thresholds")
	}
	defer rows.Close()

	var thresholds []*ApprovalThreshold
	for rows.Next() {
		t, err := r.scanThresholdRow(rows)
		if err != nil {
			return nil, err
		}
		thresholds = append(thresholds, t)
	}
	return thresholds, nil
}

// ListActive returns the active thresholds for a module ordered by
// sequence_order. This is the resolver's working set.
func (r *ThresholdRepository) ListActive(ctx context.Context, entityID, module string) ([]*ApprovalThreshold, error) {
	return r.List(ctx, entityID, module, true)
}

// Update persists changes to an existing threshold.
func (r *ThresholdRepository) Update(ctx context.Context, t *ApprovalThreshold) error {
	query := `
		UPDATE approval_thresholds
		SET module           = $3,
		    min_amount       = $4,
		    max_amount       = $5,
		    approver_role    = $6,
		    approver_role_ar = $7,
		    sequence_order   = $8,
		    is_active        = $9,
		    updated_at       = NOW()
		WHERE id = $1 AND entity_id = $2
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		t.ID,
		t.EntityID,
		t.Module,
		t.MinAmount,
		t.MaxAmount,
		t.ApproverRole,
		t.ApproverRoleAr,
		t.SequenceOrder,
		t.IsActive,
	).Scan(&t.UpdatedAt)

	if err == pgx.ErrNoRows {
		return apperrors.NotFound("approval_threshold", t.ID)
	}
	return err
}

// Delete removes a threshold. Workflows already resolved against it are
// unaffected since steps are snapshotted at initiation time.
func (r *ThresholdRepository) Delete(ctx context.Context, id, entityID string) error {
	query := `
		DELETE FROM approval_thresholds
		WHERE id = $1 AND entity_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, entityID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to delete approval threshold")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("approval_threshold", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

type thresholdScanner interface {
	Scan(dest ...any) error
}

func (r *ThresholdRepository) scanThreshold(row thresholdScanner) (*ApprovalThreshold, error) {
	t := &ApprovalThreshold{}
	err := row.Scan(
		&t.ID,
		&t.EntityID,
		&t.Module,
		&t.MinAmount,
		&t.MaxAmount,
		&t.ApproverRole,
		&t.ApproverRoleAr,
		&t.SequenceOrder,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *ThresholdRepository) scanThresholdRow(rows pgx.Rows) (*ApprovalThreshold, error) {
	t, err := r.scanThreshold(rows)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan approval threshold")
	}
	return t, nil
}
