package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/repository"
)

func newThresholdFixture() (*ThresholdService, *fakeThresholdStore) {
	store := &fakeThresholdStore{}
	return NewThresholdService(store, testLogger()), store
}

func validThreshold() *repository.ApprovalThreshold {
	return &repository.ApprovalThreshold{
		EntityID:      testEntity,
		Module:        repository.ModulePurchaseRequest,
		MinAmount:     0,
		MaxAmount:     i64(10000),
		ApproverRole:  "MANAGER",
		SequenceOrder: 1,
		IsActive:      true,
	}
}

func TestThresholdCreateValidates(t *testing.T) {
	svc, _ := newThresholdFixture()
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*repository.ApprovalThreshold)
	}{
		{"invalid module", func(th *repository.ApprovalThreshold) { th.Module = "invoice" }},
		{"negative min", func(th *repository.ApprovalThreshold) { th.MinAmount = -1 }},
		{"max below min", func(th *repository.ApprovalThreshold) { th.MinAmount = 500; th.MaxAmount = i64(100) }},
		{"zero sequence", func(th *repository.ApprovalThreshold) { th.SequenceOrder = 0 }},
		{"missing role", func(th *repository.ApprovalThreshold) { th.ApproverRole = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			th := validThreshold()
			tc.mutate(th)
			err := svc.Create(ctx, th)
			assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
		})
	}
}

func TestThresholdCreateRejectsOverlappingRange(t *testing.T) {
	svc, _ := newThresholdFixture()
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, validThreshold()))

	// Shares the 10000 boundary with the existing [0, 10000] range.
	overlapping := validThreshold()
	overlapping.MinAmount = 10000
	overlapping.MaxAmount = i64(50000)
	overlapping.ApproverRole = "DIRECTOR"
	overlapping.SequenceOrder = 2

	err := svc.Create(ctx, overlapping)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestThresholdCreateAcceptsAdjacentRange(t *testing.T) {
	svc, _ := newThresholdFixture()
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, validThreshold()))

	adjacent := validThreshold()
	adjacent.MinAmount = 10001
	adjacent.MaxAmount = nil
	adjacent.ApproverRole = "DIRECTOR"
	adjacent.SequenceOrder = 2

	assert.NoError(t, svc.Create(ctx, adjacent))
}

func TestThresholdOverlapIgnoresOtherModule(t *testing.T) {
	svc, _ := newThresholdFixture()
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, validThreshold()))

	sameRange := validThreshold()
	sameRange.Module = repository.ModulePurchaseOrder

	assert.NoError(t, svc.Create(ctx, sameRange))
}

func TestThresholdOverlapIgnoresInactive(t *testing.T) {
	svc, _ := newThresholdFixture()
	ctx := context.Background()
	require.NoError(t, svc.Create(ctx, validThreshold()))

	inactive := validThreshold()
	inactive.IsActive = false

	assert.NoError(t, svc.Create(ctx, inactive))
}

func TestThresholdUpdateExcludesSelfFromOverlapCheck(t *testing.T) {
	svc, store := newThresholdFixture()
	ctx := context.Background()
	th := validThreshold()
	require.NoError(t, svc.Create(ctx, th))

	// Narrowing its own range must not collide with itself.
	th.MaxAmount = i64(8000)
	assert.NoError(t, svc.Update(ctx, th))
	assert.Len(t, store.thresholds, 1)
}

func TestThresholdUnboundedMaxOverlapsEverythingAbove(t *testing.T) {
	svc, _ := newThresholdFixture()
	ctx := context.Background()

	unbounded := validThreshold()
	unbounded.MinAmount = 50001
	unbounded.MaxAmount = nil
	unbounded.ApproverRole = "CEO"
	require.NoError(t, svc.Create(ctx, unbounded))

	above := validThreshold()
	above.MinAmount = 100000
	above.MaxAmount = nil
	above.ApproverRole = "BOARD"
	above.SequenceOrder = 2

	err := svc.Create(ctx, above)
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
}

func TestRangesOverlap(t *testing.T) {
	cases := []struct {
		name                   string
		aMin, bMin             int64
		aMax, bMax             *int64
		want                   bool
	}{
		{"disjoint", 0, 10001, i64(10000), i64(50000), false},
		{"shared boundary", 0, 10000, i64(10000), i64(50000), true},
		{"contained", 0, 100, i64(10000), i64(200), true},
		{"both unbounded", 0, 50000, nil, nil, true},
		{"bounded below unbounded", 0, 10001, i64(10000), nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, rangesOverlap(tc.aMin, tc.aMax, tc.bMin, tc.bMax))
			// Overlap is symmetric.
			assert.Equal(t, tc.want, rangesOverlap(tc.bMin, tc.bMax, tc.aMin, tc.aMax))
		})
	}
}
