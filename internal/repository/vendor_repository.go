package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/database"
)

// VendorRepository handles CRUD for the vendor registry. Vendor names feed
// supplier enrichment in comparison exports.
type VendorRepository struct {
	db *database.DB
}

// NewVendorRepository creates a new VendorRepository.
func NewVendorRepository(db *database.DB) *VendorRepository {
	return &VendorRepository{db: db}
}

const vendorColumns = `id, entity_id, name, name_ar,
	       contact_person, email, phone, is_active,
	       created_at, updated_at`

// Create inserts a new vendor.
func (r *VendorRepository) Create(ctx context.Context, v *Vendor) error {
	query := `
		INSERT INTO vendors
		    (entity_id, name, name_ar, contact_person, email, phone, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		v.EntityID,
		v.Name,
		v.NameAr,
		v.ContactPerson,
		v.Email,
		v.Phone,
		v.IsActive,
	).Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
}

// GetByID retrieves a vendor by primary key.
func (r *VendorRepository) GetByID(ctx context.Context, id, entityID string) (*Vendor, error) {
	query := `
		SELECT ` + vendorColumns + `
		FROM vendors
		WHERE id = $1 AND entity_id = $2
	`

	v, err := r.scanVendor(r.db.QueryRow(ctx, query, id, entityID))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("vendor", id)
	}
	return v, err
}

// List returns vendors for an entity, optionally active only.
func (r *VendorRepository) List(ctx context.Context, entityID string, activeOnly bool) ([]*Vendor, error) {
	query := `
		SELECT ` + vendorColumns + `
		FROM vendors
		WHERE entity_id = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY name ASC"

	rows, err := r.db.Query(ctx, query, entityID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list vendors")
	}
	defer rows.Close()

	var vendors []*Vendor
	for rows.Next() {
		v, err := r.scanVendor(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan vendor")
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

// Update persists changes to an existing vendor.
func (r *VendorRepository) Update(ctx context.Context, v *Vendor) error {
	query := `
		UPDATE vendors
		SET name           = $3,
		    name_ar        = $4,
		    contact_person = $5,
		    email          = $6,
		    phone          = $7,
		    is_active      = $8,
		    updated_at     = NOW()
		WHERE id = $1 AND entity_id = $2
		RETURNING updated_at
	`

	err := r.db.QueryRow(ctx, query,
		v.ID,
		v.EntityID,
		v.Name,
		v.NameAr,
		v.ContactPerson,
		v.Email,
		v.Phone,
		v.IsActive,
	).Scan(&v.UpdatedAt)

	if err == pgx.ErrNoRows {
		return apperrors.NotFound("vendor", v.ID)
	}
	return err
}

// Delete removes a vendor.
func (r *VendorRepository) Delete(ctx context.Context, id, entityID string) error {
	query := `
		DELETE FROM vendors
		WHERE id = $1 AND entity_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, entityID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to delete vendor")
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("vendor", id)
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type vendorScanner interface {
	Scan(dest ...any) error
}

func (r *VendorRepository) scanVendor(row vendorScanner) (*Vendor, error) {
	v := &Vendor{}
	err := row.Scan(
		&v.ID,
		&v.EntityID,
		&v.Name,
		&v.NameAr,
		&v.ContactPerson,
		&v.Email,
		&v.Phone,
		&v.IsActive,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return v, nil
}
