package repository

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/database"
)

// DocumentRepository handles CRUD for procurement documents (PRs and POs).
// The approval engine only references documents by id; status writes happen
// here on behalf of the handler layer.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, entity_id, code, doc_type, title,
	       amount, currency, department_id, vendor_id,
	       status, created_by, rejection_reason,
	       created_at, updated_at`

// Create inserts a new document in draft status.
func (r *DocumentRepository) Create(ctx context.Context, d *Document) error {
	query := `
		INSERT INTO procurement_documents
		    (entity_id, code, doc_type, title,
		     amount, currency, department_id, vendor_id,
		     status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		d.EntityID,
		d.Code,
		d.DocType,
		d.Title,
		d.Amount,
		d.Currency,
		d.DepartmentID,
		d.VendorID,
		d.Status,
		d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
}

// GetByID retrieves a document by primary key.
func (r *DocumentRepository) GetByID(ctx context.Context, id, entityID string) (*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM procurement_documents
		WHERE id = $1 AND entity_id = $2
	`

	d, err := r.scanDocument(r.db.QueryRow(ctx, query, id, entityID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("document", id)
	}
	return d, err
}

// List returns documents for an entity, optionally filtered by type and status.
func (r *DocumentRepository) List(ctx context.Context, entityID, docType, status string, limit, offset int) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM procurement_documents
		WHERE entity_id = $1
	`
	args := []any{entityID}
	if docType != "" {
		args = append(args, docType)
		query += " AND doc_type = $2"
	}
	if status != "" {
		args = append(args, status)
		if docType != "" {
			query += " AND status = $3"
		} else {
			query += " AND status = $2"
		}
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit, offset)
		query += " LIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list documents")
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := r.scanDocument(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan document")
		}
		docs = append(docs, d)
	}
	return docs, nil
}

// UpdateStatus sets a document's status and clears any prior rejection reason.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id, entityID, status string) error {
	query := `
		UPDATE procurement_documents
		SET status           = $3,
		    rejection_reason = NULL,
		    updated_at       = NOW()
		WHERE id = $1 AND entity_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, entityID, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("document", id)
	}
	return err
}

// SetRejection marks a document rejected with the approver's verbatim reason
// so the creator can see why.
func (r *DocumentRepository) SetRejection(ctx context.Context, id, entityID, reason string) error {
	query := `
		UPDATE procurement_documents
		SET status           = 'rejected',
		    rejection_reason = $3,
		    updated_at       = NOW()
		WHERE id = $1 AND entity_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, entityID, reason).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("document", id)
	}
	return err
}

// ── scan helper ───────────────────────────────────────────────────────────────

type documentScanner interface {
	Scan(dest ...any) error
}

func (r *DocumentRepository) scanDocument(row documentScanner) (*Document, error) {
	d := &Document{}
	err := row.Scan(
		&d.ID,
		&d.EntityID,
		&d.Code,
		&d.DocType,
		&d.Title,
		&d.Amount,
		&d.Currency,
		&d.DepartmentID,
		&d.VendorID,
		&d.Status,
		&d.CreatedBy,
		&d.RejectionReason,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
