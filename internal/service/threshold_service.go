package service

import (
	"context"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/logger"
	"github.com/mashareq-erp/be-procurement/internal/repository"
)

// ThresholdService is the admin surface for approval thresholds. It enforces
// range exclusivity: two active thresholds for the same module must not have
// intersecting amount ranges, so a single amount can never double-match at a
// shared boundary.
type ThresholdService struct {
	thresholds ThresholdStore
	log        *logger.Logger
}

// NewThresholdService creates a new ThresholdService.
func NewThresholdService(thresholds ThresholdStore, log *logger.Logger) *ThresholdService {
	return &ThresholdService{thresholds: thresholds, log: log}
}

// Create validates and persists a new threshold.
func (s *ThresholdService) Create(ctx context.Context, t *repository.ApprovalThreshold) error {
	if err := s.validate(ctx, t); err != nil {
		return err
	}
	if err := s.thresholds.Create(ctx, t); err != nil {
		return err
	}
	s.log.Info().
		Str("threshold_id", t.ID).
		Str("module", t.Module).
		Str("role", t.ApproverRole).
		Msg("Approval threshold created")
	return nil
}

// Update validates and persists changes to a threshold. Existing workflows
// are unaffected: steps were snapshotted at initiation time.
func (s *ThresholdService) Update(ctx context.Context, t *repository.ApprovalThreshold) error {
	if err := s.validate(ctx, t); err != nil {
		return err
	}
	return s.thresholds.Update(ctx, t)
}

// Delete removes a threshold.
func (s *ThresholdService) Delete(ctx context.Context, id, entityID string) error {
	return s.thresholds.Delete(ctx, id, entityID)
}

// Get returns one threshold.
func (s *ThresholdService) Get(ctx context.Context, id, entityID string) (*repository.ApprovalThreshold, error) {
	return s.thresholds.GetByID(ctx, id, entityID)
}

// List returns thresholds for an entity.
func (s *ThresholdService) List(ctx context.Context, entityID, module string, activeOnly bool) ([]*repository.ApprovalThreshold, error) {
	return s.thresholds.List(ctx, entityID, module, activeOnly)
}

func (s *ThresholdService) validate(ctx context.Context, t *repository.ApprovalThreshold) error {
	if !repository.ValidModule(t.Module) {
		return apperrors.InvalidInput("module", "must be purchase_request or purchase_order")
	}
	if t.MinAmount < 0 {
		return apperrors.InvalidInput("min_amount", "must not be negative")
	}
	if t.MaxAmount != nil && *t.MaxAmount < t.MinAmount {
		return apperrors.InvalidInput("max_amount", "must not be below min_amount")
	}
	if t.SequenceOrder < 1 {
		return apperrors.InvalidInput("sequence_order", "must be at least 1")
	}
	if t.ApproverRole == "" {
		return apperrors.InvalidInput("approver_role", "is required")
	}
	if !t.IsActive {
		return nil
	}

	// Range exclusivity against other active thresholds in the same module.
	active, err := s.thresholds.ListActive(ctx, t.EntityID, t.Module)
	if err != nil {
		return err
	}
	for _, other := range active {
		if other.ID == t.ID {
			continue
		}
		if rangesOverlap(t.MinAmount, t.MaxAmount, other.MinAmount, other.MaxAmount) {
			return apperrors.Newf(apperrors.CodeValidation,
				"amount range overlaps active threshold for role %s (sequence %d)",
				other.ApproverRole, other.SequenceOrder)
		}
	}
	return nil
}

// rangesOverlap reports whether [aMin, aMax] and [bMin, bMax] intersect,
// treating a nil max as unbounded. Bounds are inclusive, so ranges sharing a
// boundary value overlap.
func rangesOverlap(aMin int64, aMax *int64, bMin int64, bMax *int64) bool {
	if aMax != nil && *aMax < bMin {
		return false
	}
	if bMax != nil && *bMax < aMin {
		return false
	}
	return true
}
