package service

import (
	"context"
	"time"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/logger"
	"github.com/mashareq-erp/be-procurement/internal/repository"
)

// IdentityClientInterface resolves user information from the identity service.
type IdentityClientInterface interface {
	// GetUsersWithRole returns user IDs that have the given role for an entity.
	GetUsersWithRole(ctx context.Context, entityID, role string) ([]string, error)
	// GetUserRoles returns the roles a specific user holds for an entity.
	GetUserRoles(ctx context.Context, entityID, userID string) ([]string, error)
}

// NotifierInterface publishes approval lifecycle events. Implementations must
// be non-fatal: publish failures are logged, never returned.
type NotifierInterface interface {
	PublishWorkflowEvent(ctx context.Context, eventType, referenceID, entityID, actorID string, payload map[string]interface{})
}

// ThresholdStore is the persistence surface the engine needs for thresholds.
type ThresholdStore interface {
	Create(ctx context.Context, t *repository.ApprovalThreshold) error
	GetByID(ctx context.Context, id, entityID string) (*repository.ApprovalThreshold, error)
	List(ctx context.Context, entityID, module string, activeOnly bool) ([]*repository.ApprovalThreshold, error)
	ListActive(ctx context.Context, entityID, module string) ([]*repository.ApprovalThreshold, error)
	Update(ctx context.Context, t *repository.ApprovalThreshold) error
	Delete(ctx context.Context, id, entityID string) error
}

// WorkflowStore persists workflow instances.
type WorkflowStore interface {
	Create(ctx context.Context, wf *repository.ApprovalWorkflow, steps []*repository.ApprovalStep) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalWorkflow, error)
	GetByReference(ctx context.Context, referenceID, category string) (*repository.ApprovalWorkflow, error)
	AdvanceStep(ctx context.Context, id string, expectedStep int) error
	Finish(ctx context.Context, id, status string, completedAt time.Time) error
}

// StepStore persists workflow steps.
type StepStore interface {
	GetByWorkflowID(ctx context.Context, workflowID string) ([]*repository.ApprovalStep, error)
	GetStep(ctx context.Context, workflowID string, sequenceOrder int) (*repository.ApprovalStep, error)
	GetPendingForRoles(ctx context.Context, entityID string, roles []string) ([]*repository.ApprovalStep, error)
	RecordAction(ctx context.Context, id, status, actedBy string, comments *string) error
}

// AuditStore appends audit entries.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByReference(ctx context.Context, referenceID, entityID string) ([]*repository.AuditEntry, error)
}

// ApprovalService orchestrates the multi-level approval workflow: threshold
// resolution, workflow initiation, step advancement and the audit trail.
type ApprovalService struct {
	thresholds     ThresholdStore
	workflows      WorkflowStore
	steps          StepStore
	audit          AuditStore
	identityClient IdentityClientInterface
	notifier       NotifierInterface
	overrideRole   string
	log            *logger.Logger
}

// NewApprovalService creates a new ApprovalService. overrideRole names a role
// that may act on any step regardless of the step's required role.
func NewApprovalService(
	thresholds ThresholdStore,
	workflows WorkflowStore,
	steps StepStore,
	audit AuditStore,
	identityClient IdentityClientInterface,
	notifier NotifierInterface,
	overrideRole string,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		thresholds:     thresholds,
		workflows:      workflows,
		steps:          steps,
		audit:          audit,
		identityClient: identityClient,
		notifier:       notifier,
		overrideRole:   overrideRole,
		log:            log,
	}
}

// ── Approver resolution ───────────────────────────────────────────────────────

// ResolveApprovers returns the ordered approver steps for a module and amount.
// A threshold matches when amount >= min and (max is unset or amount <= max);
// both bounds are inclusive. Each matching threshold yields one step — no
// deduplication of repeated roles. An empty result means auto-approval.
func (s *ApprovalService) ResolveApprovers(ctx context.Context, entityID, module string, amount int64) ([]*repository.ApprovalThreshold, error) {
	if !repository.ValidModule(module) {
		return nil, apperrors.InvalidInput("module", "must be purchase_request or purchase_order")
	}
	if amount < 0 {
		return nil, apperrors.InvalidInput("amount", "must not be negative")
	}

	active, err := s.thresholds.ListActive(ctx, entityID, module)
	if err != nil {
		return nil, err
	}

	var matched []*repository.ApprovalThreshold
	for _, t := range active {
		if amount < t.MinAmount {
			continue
		}
		if t.MaxAmount != nil && amount > *t.MaxAmount {
			continue
		}
		matched = append(matched, t)
	}
	// ListActive already orders by sequence_order.
	return matched, nil
}

// ── Workflow initiation ───────────────────────────────────────────────────────

// InitiateRequest carries the document snapshot a workflow is created from.
type InitiateRequest struct {
	EntityID      string
	ReferenceID   string
	ReferenceCode string
	Category      string // purchase_request | purchase_order
	Amount        int64
	Currency      string
	DepartmentID  *string
	SubmittedBy   string
}

// InitiateResult is the caller's contract for acting on its own document:
// AutoApproved means no workflow row exists and the document may go straight
// to approved.
type InitiateResult struct {
	WorkflowID    string
	AutoApproved  bool
	ApproverCount int
}

// Initiate resolves approvers and creates a workflow, or short-circuits to
// auto-approval when no threshold matches the amount.
func (s *ApprovalService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	if req.ReferenceID == "" {
		return nil, apperrors.InvalidInput("reference_id", "is required")
	}
	if req.SubmittedBy == "" {
		return nil, apperrors.InvalidInput("submitted_by", "is required")
	}

	matched, err := s.ResolveApprovers(ctx, req.EntityID, req.Category, req.Amount)
	if err != nil {
		return nil, err
	}

	if len(matched) == 0 {
		s.appendAudit(ctx, &repository.AuditEntry{
			EntityID:    req.EntityID,
			ReferenceID: req.ReferenceID,
			Action:      "auto_approved",
			PerformedBy: req.SubmittedBy,
			Metadata: map[string]interface{}{
				"reference_code": req.ReferenceCode,
				"amount":         req.Amount,
				"currency":       req.Currency,
			},
		})
		s.log.Info().
			Str("reference_id", req.ReferenceID).
			Str("category", req.Category).
			Int64("amount", req.Amount).
			Msg("No thresholds matched; document auto-approved")
		return &InitiateResult{AutoApproved: true}, nil
	}

	steps := s.buildSteps(ctx, req.EntityID, matched)

	wf := &repository.ApprovalWorkflow{
		EntityID:      req.EntityID,
		ReferenceID:   req.ReferenceID,
		ReferenceCode: req.ReferenceCode,
		Category:      req.Category,
		Amount:        req.Amount,
		Currency:      req.Currency,
		DepartmentID:  req.DepartmentID,
		Status:        repository.WorkflowPending,
		TotalSteps:    len(steps),
		CurrentStep:   1,
		SubmittedBy:   req.SubmittedBy,
	}

	if err := s.workflows.Create(ctx, wf, steps); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		EntityID:    req.EntityID,
		ReferenceID: req.ReferenceID,
		WorkflowID:  &wf.ID,
		Action:      "submitted",
		PerformedBy: req.SubmittedBy,
		Metadata: map[string]interface{}{
			"reference_code": req.ReferenceCode,
			"total_steps":    wf.TotalSteps,
		},
	})
	s.notify(ctx, "workflow_submitted", wf, req.SubmittedBy, map[string]interface{}{
		"total_steps": wf.TotalSteps,
	})

	s.log.Info().
		Str("reference_id", req.ReferenceID).
		Str("workflow_id", wf.ID).
		Int("total_steps", wf.TotalSteps).
		Msg("Approval workflow created")

	return &InitiateResult{
		WorkflowID:    wf.ID,
		ApproverCount: wf.TotalSteps,
	}, nil
}

// buildSteps converts matched thresholds into pending workflow steps, in
// resolution order, pre-assigning the first available user for each role.
func (s *ApprovalService) buildSteps(ctx context.Context, entityID string, matched []*repository.ApprovalThreshold) []*repository.ApprovalStep {
	steps := make([]*repository.ApprovalStep, 0, len(matched))

	for i, t := range matched {
		step := &repository.ApprovalStep{
			SequenceOrder:  i + 1,
			ApproverRole:   t.ApproverRole,
			ApproverRoleAr: t.ApproverRoleAr,
			Status:         repository.StepPending,
		}

		users, err := s.identityClient.GetUsersWithRole(ctx, entityID, t.ApproverRole)
		if err != nil {
			s.log.Warn().Err(err).Str("role", t.ApproverRole).Msg("Could not fetch users for role; step will be unassigned")
		} else if len(users) > 0 {
			step.ApproverUserID = &users[0]
		}

		steps = append(steps, step)
	}

	return steps
}

// ── Approve ───────────────────────────────────────────────────────────────────

// ApproveResult reports whether the whole workflow finished with this action.
// Reference fields let the caller synchronize its own document status.
type ApproveResult struct {
	Completed   bool
	ReferenceID string
	EntityID    string
	Category    string
}

// Approve records approval on the identified step. When the step is the last
// one the workflow transitions to completed.
func (s *ApprovalService) Approve(ctx context.Context, workflowID string, sequenceOrder int, actedBy string, comments *string) (*ApproveResult, error) {
	wf, step, err := s.loadActionableStep(ctx, workflowID, sequenceOrder)
	if err != nil {
		return nil, err
	}
	if err := s.assertCanAct(ctx, wf.EntityID, step, actedBy); err != nil {
		return nil, err
	}

	if err := s.steps.RecordAction(ctx, step.ID, repository.StepApproved, actedBy, comments); err != nil {
		return nil, err
	}

	completed := sequenceOrder >= wf.TotalSteps
	if completed {
		if err := s.workflows.Finish(ctx, workflowID, repository.WorkflowCompleted, time.Now()); err != nil {
			return nil, err
		}
	} else {
		if err := s.workflows.AdvanceStep(ctx, workflowID, sequenceOrder); err != nil {
			return nil, err
		}
	}

	statusAfter := repository.WorkflowPending
	if completed {
		statusAfter = repository.WorkflowCompleted
	}
	s.appendAudit(ctx, &repository.AuditEntry{
		EntityID:    wf.EntityID,
		ReferenceID: wf.ReferenceID,
		WorkflowID:  &workflowID,
		StepID:      &step.ID,
		Action:      "approved",
		PerformedBy: actedBy,
		StatusAfter: &statusAfter,
		Metadata: map[string]interface{}{
			"sequence_order": sequenceOrder,
			"approver_role":  step.ApproverRole,
		},
	})

	event := "step_approved"
	if completed {
		event = "workflow_completed"
	}
	s.notify(ctx, event, wf, actedBy, map[string]interface{}{
		"sequence_order": sequenceOrder,
	})

	return &ApproveResult{
		Completed:   completed,
		ReferenceID: wf.ReferenceID,
		EntityID:    wf.EntityID,
		Category:    wf.Category,
	}, nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

// Reject records rejection on the identified step. The workflow transitions to
// rejected immediately; remaining steps never execute. The reason is mandatory
// and surfaced verbatim to the document's creator.
func (s *ApprovalService) Reject(ctx context.Context, workflowID string, sequenceOrder int, actedBy, reason string) (*repository.ApprovalWorkflow, error) {
	if reason == "" {
		return nil, apperrors.InvalidInput("reason", "rejection reason is required")
	}

	wf, step, err := s.loadActionableStep(ctx, workflowID, sequenceOrder)
	if err != nil {
		return nil, err
	}
	if err := s.assertCanAct(ctx, wf.EntityID, step, actedBy); err != nil {
		return nil, err
	}

	if err := s.steps.RecordAction(ctx, step.ID, repository.StepRejected, actedBy, &reason); err != nil {
		return nil, err
	}
	if err := s.workflows.Finish(ctx, workflowID, repository.WorkflowRejected, time.Now()); err != nil {
		return nil, err
	}

	statusAfter := repository.WorkflowRejected
	s.appendAudit(ctx, &repository.AuditEntry{
		EntityID:    wf.EntityID,
		ReferenceID: wf.ReferenceID,
		WorkflowID:  &workflowID,
		StepID:      &step.ID,
		Action:      "rejected",
		PerformedBy: actedBy,
		StatusAfter: &statusAfter,
		Metadata: map[string]interface{}{
			"sequence_order": sequenceOrder,
			"reason":         reason,
		},
	})
	s.notify(ctx, "workflow_rejected", wf, actedBy, map[string]interface{}{
		"sequence_order": sequenceOrder,
		"reason":         reason,
	})

	return wf, nil
}

// loadActionableStep fetches the workflow and step and verifies the action
// targets the current pending step of a pending workflow.
func (s *ApprovalService) loadActionableStep(ctx context.Context, workflowID string, sequenceOrder int) (*repository.ApprovalWorkflow, *repository.ApprovalStep, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	if wf.Status != repository.WorkflowPending {
		return nil, nil, apperrors.Newf(apperrors.CodeConflict,
			"workflow is not pending (status: %s)", wf.Status)
	}
	if sequenceOrder != wf.CurrentStep {
		return nil, nil, apperrors.Newf(apperrors.CodeConflict,
			"step %d is not the current step (current: %d)", sequenceOrder, wf.CurrentStep)
	}

	step, err := s.steps.GetStep(ctx, workflowID, sequenceOrder)
	if err != nil {
		return nil, nil, err
	}
	if step.Status != repository.StepPending {
		return nil, nil, apperrors.Newf(apperrors.CodeConflict,
			"step %d is not pending (status: %s)", sequenceOrder, step.Status)
	}
	return wf, step, nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// WorkflowView is a workflow with its steps attached.
type WorkflowView struct {
	Workflow *repository.ApprovalWorkflow
	Steps    []*repository.ApprovalStep
}

// GetWorkflow returns the latest workflow for a document with its steps, or
// nil when no workflow has been initiated.
func (s *ApprovalService) GetWorkflow(ctx context.Context, referenceID, category string) (*WorkflowView, error) {
	wf, err := s.workflows.GetByReference(ctx, referenceID, category)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, nil
	}
	steps, err := s.steps.GetByWorkflowID(ctx, wf.ID)
	if err != nil {
		return nil, err
	}
	return &WorkflowView{Workflow: wf, Steps: steps}, nil
}

// GetPendingApprovals returns the current steps awaiting action from a user,
// based on the roles the user holds.
func (s *ApprovalService) GetPendingApprovals(ctx context.Context, entityID, userID string) ([]*repository.ApprovalStep, error) {
	roles, err := s.identityClient.GetUserRoles(ctx, entityID, userID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeUnavailable, "failed to resolve user roles")
	}
	return s.steps.GetPendingForRoles(ctx, entityID, roles)
}

// GetApprovalHistory returns the full audit trail for a document.
func (s *ApprovalService) GetApprovalHistory(ctx context.Context, referenceID, entityID string) ([]*repository.AuditEntry, error) {
	return s.audit.GetByReference(ctx, referenceID, entityID)
}

// ── Authorization helper ──────────────────────────────────────────────────────

// assertCanAct checks that the actor holds the step's required role (or the
// override role) before any state is mutated. Fails closed: an identity
// lookup failure denies the action.
func (s *ApprovalService) assertCanAct(ctx context.Context, entityID string, step *repository.ApprovalStep, userID string) error {
	if step.ApproverUserID != nil && *step.ApproverUserID == userID {
		return nil
	}

	roles, err := s.identityClient.GetUserRoles(ctx, entityID, userID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeUnauthorized, "could not verify approver roles")
	}
	for _, role := range roles {
		if role == step.ApproverRole || (s.overrideRole != "" && role == s.overrideRole) {
			return nil
		}
	}
	return apperrors.New(apperrors.CodeUnauthorized,
		"user is not authorized to act on this approval step")
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func (s *ApprovalService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("reference_id", entry.ReferenceID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func (s *ApprovalService) notify(ctx context.Context, event string, wf *repository.ApprovalWorkflow, actorID string, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.PublishWorkflowEvent(ctx, event, wf.ReferenceID, wf.EntityID, actorID, payload)
}
