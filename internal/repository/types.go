package repository

import "time"

// ── Domain types for the approval workflow ───────────────────────────────────

// Module names a procurement document category that approval thresholds
// can be configured for.
const (
	ModulePurchaseRequest = "purchase_request"
	ModulePurchaseOrder   = "purchase_order"
)

// ValidModule reports whether m is a configurable approval module.
func ValidModule(m string) bool {
	return m == ModulePurchaseRequest || m == ModulePurchaseOrder
}

// Workflow statuses.
const (
	WorkflowPending   = "pending"
	WorkflowCompleted = "completed"
	WorkflowRejected  = "rejected"
)

// Step statuses.
const (
	StepPending  = "pending"
	StepApproved = "approved"
	StepRejected = "rejected"
)

// ApprovalThreshold is a configured amount-range → approver-role rule.
// Amounts are minor units (fils/cents). A nil MaxAmount means unbounded.
type ApprovalThreshold struct {
	ID             string
	EntityID       string
	Module         string // purchase_request | purchase_order
	MinAmount      int64
	MaxAmount      *int64
	ApproverRole   string
	ApproverRoleAr string
	SequenceOrder  int // >= 1; resolution order within the module
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ApprovalWorkflow is a workflow instance created when a document is
// submitted for approval. Reference fields are immutable after creation.
type ApprovalWorkflow struct {
	ID            string
	EntityID      string
	ReferenceID   string
	ReferenceCode string
	Category      string // purchase_request | purchase_order
	Amount        int64
	Currency      string
	DepartmentID  *string
	Status        string // pending | completed | rejected
	TotalSteps    int
	CurrentStep   int
	SubmittedBy   string
	SubmittedAt   time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ApprovalStep is one approver's slot within a workflow. Exactly one step
// (the workflow's CurrentStep) is actionable while the workflow is pending.
type ApprovalStep struct {
	ID             string
	WorkflowID     string
	EntityID       string
	SequenceOrder  int
	ApproverRole   string
	ApproverRoleAr string
	ApproverUserID *string
	Status         string // pending | approved | rejected
	Comments       *string
	ActedBy        *string
	ActedAt        *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AuditEntry is one immutable record in the approval audit trail.
type AuditEntry struct {
	ID             string
	EntityID       string
	ReferenceID    string
	WorkflowID     *string
	StepID         *string
	Action         string // submitted | auto_approved | approved | rejected | resubmitted
	PerformedBy    string
	PerformedAt    time.Time
	StatusBefore   *string
	StatusAfter    *string
	Metadata       map[string]interface{}
}

// Document is a procurement document (purchase request or purchase order)
// whose approval lifecycle this service drives.
type Document struct {
	ID              string
	EntityID        string
	Code            string
	DocType         string // purchase_request | purchase_order
	Title           string
	Amount          int64
	Currency        string
	DepartmentID    *string
	VendorID        *string
	Status          string // draft | submitted | approved | rejected
	CreatedBy       string
	RejectionReason *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Document statuses.
const (
	DocumentDraft     = "draft"
	DocumentSubmitted = "submitted"
	DocumentApproved  = "approved"
	DocumentRejected  = "rejected"
)

// Vendor is a registered supplier.
type Vendor struct {
	ID            string
	EntityID      string
	Name          string
	NameAr        *string
	ContactPerson *string
	Email         *string
	Phone         *string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
