package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/database"
)

// AuditRepository appends and reads immutable approval audit log entries.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit entry. The table has a delete-prevention trigger so
// this is the only mutation operation exposed.
func (r *AuditRepository) Append(ctx context.Context, entry *AuditEntry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO approval_audit_log
		    (entity_id, reference_id, workflow_id, step_id,
		     action, performed_by,
		     status_before, status_after,
		     metadata)
		VALUES ($1, $2, $3, $4,
		        $5, $6,
		        $7, $8,
		        $9)
		RETURNING id, performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.EntityID,
		entry.ReferenceID,
		entry.WorkflowID,
		entry.StepID,
		entry.Action,
		entry.PerformedBy,
		entry.StatusBefore,
		entry.StatusAfter,
		metadataJSON,
	).Scan(&entry.ID, &entry.PerformedAt)
}

// GetByReference returns the full audit trail for a document ordered oldest-first.
func (r *AuditRepository) GetByReference(ctx context.Context, referenceID, entityID string) ([]*AuditEntry, error) {
	query := `
		SELECT id, entity_id, reference_id, workflow_id, step_id,
		       action, performed_by, performed_at,
		       status_before, status_after,
		       metadata
		FROM approval_audit_log
		WHERE reference_id = $1 AND entity_id = $2
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, referenceID, entityID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEntry, error) {
	var entries []*AuditEntry
	for rows.Next() {
		e := &AuditEntry{}
		var metadataJSON []byte
		err := rows.Scan(
			&e.ID,
			&e.EntityID,
			&e.ReferenceID,
			&e.WorkflowID,
			&e.StepID,
			&e.Action,
			&e.PerformedBy,
			&e.PerformedAt,
			&e.StatusBefore,
			&e.StatusAfter,
			&metadataJSON,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan audit entry")
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &e.Metadata); err != nil {
				return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to unmarshal audit metadata")
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
