package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/export"
	"github.com/mashareq-erp/be-procurement/internal/logger"
	"github.com/mashareq-erp/be-procurement/internal/repository"
	"github.com/mashareq-erp/be-procurement/internal/service"
)

// DocumentStore is the persistence surface the handler needs for documents.
type DocumentStore interface {
	Create(ctx context.Context, d *repository.Document) error
	GetByID(ctx context.Context, id, entityID string) (*repository.Document, error)
	List(ctx context.Context, entityID, docType, status string, limit, offset int) ([]*repository.Document, error)
	UpdateStatus(ctx context.Context, id, entityID, status string) error
	SetRejection(ctx context.Context, id, entityID, reason string) error
}

// HTTPHandler handles HTTP requests for the procurement service.
type HTTPHandler struct {
	documents   DocumentStore
	vendors     *repository.VendorRepository
	approvals   *service.ApprovalService
	thresholds  *service.ThresholdService
	comparisons *service.ComparisonService
	companyName string
	log         *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	documents DocumentStore,
	vendors *repository.VendorRepository,
	approvals *service.ApprovalService,
	thresholds *service.ThresholdService,
	comparisons *service.ComparisonService,
	companyName string,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		documents:   documents,
		vendors:     vendors,
		approvals:   approvals,
		thresholds:  thresholds,
		comparisons: comparisons,
		companyName: companyName,
		log:         log,
	}
}

// ── Documents ─────────────────────────────────────────────────────────────────

type createDocumentRequest struct {
	Code         string  `json:"code"`
	DocType      string  `json:"doc_type"`
	Title        string  `json:"title"`
	Amount       int64   `json:"amount"`
	Currency     string  `json:"currency"`
	DepartmentID *string `json:"department_id,omitempty"`
	VendorID     *string `json:"vendor_id,omitempty"`
}

// CreateDocument creates a draft PR or PO.
func (h *HTTPHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	entityID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req createDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}
	if !repository.ValidModule(req.DocType) {
		h.writeError(w, apperrors.InvalidInput("doc_type", "must be purchase_request or purchase_order"))
		return
	}
	if req.Amount <= 0 {
		h.writeError(w, apperrors.InvalidInput("amount", "must be positive"))
		return
	}

	doc := &repository.Document{
		EntityID:     entityID,
		Code:         req.Code,
		DocType:      req.DocType,
		Title:        req.Title,
		Amount:       req.Amount,
		Currency:     req.Currency,
		DepartmentID: req.DepartmentID,
		VendorID:     req.VendorID,
		Status:       repository.DocumentDraft,
		CreatedBy:    userID,
	}
	if err := h.documents.Create(r.Context(), doc); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, doc)
}

// GetDocument returns one document.
func (h *HTTPHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, apperrors.InvalidInput("id", "is required"))
		return
	}

	doc, err := h.documents.GetByID(r.Context(), id, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// ListDocuments returns documents filtered by type and status.
func (h *HTTPHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	docs, err := h.documents.List(r.Context(), entityID,
		r.URL.Query().Get("doc_type"), r.URL.Query().Get("status"), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

type submitRequest struct {
	ID string `json:"id"`
}

// SubmitDocument initiates the approval workflow for a draft document and
// synchronizes the document status with the initiation outcome.
func (h *HTTPHandler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, repository.DocumentDraft)
}

// ResubmitDocument creates a fresh workflow for a rejected document. The old
// rejected workflow is preserved as audit trail.
func (h *HTTPHandler) ResubmitDocument(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, repository.DocumentRejected)
}

func (h *HTTPHandler) submit(w http.ResponseWriter, r *http.Request, expectedStatus string) {
	entityID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		h.writeError(w, apperrors.InvalidInput("id", "is required"))
		return
	}

	doc, err := h.documents.GetByID(r.Context(), req.ID, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if doc.Status != expectedStatus {
		h.writeError(w, apperrors.Newf(apperrors.CodeConflict,
			"document cannot be submitted from status '%s'", doc.Status))
		return
	}

	result, err := h.approvals.Initiate(r.Context(), service.InitiateRequest{
		EntityID:      entityID,
		ReferenceID:   doc.ID,
		ReferenceCode: doc.Code,
		Category:      doc.DocType,
		Amount:        doc.Amount,
		Currency:      doc.Currency,
		DepartmentID:  doc.DepartmentID,
		SubmittedBy:   userID,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Document status sync: auto-approved documents skip straight to approved.
	status := repository.DocumentSubmitted
	if result.AutoApproved {
		status = repository.DocumentApproved
	}
	if err := h.documents.UpdateStatus(r.Context(), doc.ID, entityID, status); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"workflow_id":    result.WorkflowID,
		"auto_approved":  result.AutoApproved,
		"approver_count": result.ApproverCount,
		"status":         status,
	})
}

// ── Workflow actions ──────────────────────────────────────────────────────────

type actionRequest struct {
	WorkflowID    string `json:"workflow_id"`
	SequenceOrder int    `json:"sequence_order"`
	Comments      string `json:"comments,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// ApproveStep approves the current workflow step on behalf of the actor and
// synchronizes the document when the workflow completes.
func (h *HTTPHandler) ApproveStep(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkflowID == "" {
		h.writeError(w, apperrors.InvalidInput("workflow_id", "is required"))
		return
	}

	var comments *string
	if req.Comments != "" {
		comments = &req.Comments
	}

	result, err := h.approvals.Approve(r.Context(), req.WorkflowID, req.SequenceOrder, userID, comments)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if result.Completed {
		if err := h.documents.UpdateStatus(r.Context(), result.ReferenceID, result.EntityID, repository.DocumentApproved); err != nil {
			h.log.Warn().Err(err).Str("reference_id", result.ReferenceID).Msg("Failed to sync document status after completion")
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"completed": result.Completed})
}

// RejectStep rejects the current workflow step and marks the document
// rejected with the approver's verbatim reason.
func (h *HTTPHandler) RejectStep(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkflowID == "" {
		h.writeError(w, apperrors.InvalidInput("workflow_id", "is required"))
		return
	}

	wf, err := h.approvals.Reject(r.Context(), req.WorkflowID, req.SequenceOrder, userID, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.documents.SetRejection(r.Context(), wf.ReferenceID, wf.EntityID, req.Reason); err != nil {
		h.log.Warn().Err(err).Str("reference_id", wf.ReferenceID).Msg("Failed to sync document status after rejection")
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"rejected": true})
}

// GetWorkflow returns the latest workflow for a document, or null when none
// has been initiated.
func (h *HTTPHandler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	referenceID := r.URL.Query().Get("reference_id")
	category := r.URL.Query().Get("category")
	if referenceID == "" || category == "" {
		h.writeError(w, apperrors.InvalidInput("reference_id", "reference_id and category are required"))
		return
	}

	view, err := h.approvals.GetWorkflow(r.Context(), referenceID, category)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

// PendingApprovals returns the steps currently awaiting the actor.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	entityID, userID, ok := h.actor(w, r)
	if !ok {
		return
	}

	steps, err := h.approvals.GetPendingApprovals(r.Context(), entityID, userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

// ApprovalHistory returns the audit trail for a document.
func (h *HTTPHandler) ApprovalHistory(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	referenceID := r.URL.Query().Get("reference_id")
	if referenceID == "" {
		h.writeError(w, apperrors.InvalidInput("reference_id", "is required"))
		return
	}

	entries, err := h.approvals.GetApprovalHistory(r.Context(), referenceID, entityID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// ── Thresholds ────────────────────────────────────────────────────────────────

type thresholdRequest struct {
	ID             string `json:"id,omitempty"`
	Module         string `json:"module"`
	MinAmount      int64  `json:"min_amount"`
	MaxAmount      *int64 `json:"max_amount,omitempty"`
	ApproverRole   string `json:"approver_role"`
	ApproverRoleAr string `json:"approver_role_ar,omitempty"`
	SequenceOrder  int    `json:"sequence_order"`
	IsActive       bool   `json:"is_active"`
}

func (req *thresholdRequest) toThreshold(entityID string) *repository.ApprovalThreshold {
	return &repository.ApprovalThreshold{
		ID:             req.ID,
		EntityID:       entityID,
		Module:         req.Module,
		MinAmount:      req.MinAmount,
		MaxAmount:      req.MaxAmount,
		ApproverRole:   req.ApproverRole,
		ApproverRoleAr: req.ApproverRoleAr,
		SequenceOrder:  req.SequenceOrder,
		IsActive:       req.IsActive,
	}
}

// CreateThreshold creates an approval threshold.
func (h *HTTPHandler) CreateThreshold(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req thresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	t := req.toThreshold(entityID)
	if err := h.thresholds.Create(r.Context(), t); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, t)
}

// UpdateThreshold updates an approval threshold.
func (h *HTTPHandler) UpdateThreshold(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req thresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		h.writeError(w, apperrors.InvalidInput("id", "is required"))
		return
	}

	t := req.toThreshold(entityID)
	if err := h.thresholds.Update(r.Context(), t); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, t)
}

// DeleteThreshold removes an approval threshold.
func (h *HTTPHandler) DeleteThreshold(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, apperrors.InvalidInput("id", "is required"))
		return
	}
	if err := h.thresholds.Delete(r.Context(), id, entityID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListThresholds lists thresholds, optionally filtered by module.
func (h *HTTPHandler) ListThresholds(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	activeOnly := r.URL.Query().Get("active") == "true"
	thresholds, err := h.thresholds.List(r.Context(), entityID, r.URL.Query().Get("module"), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"thresholds": thresholds})
}

// ── Vendors ───────────────────────────────────────────────────────────────────

// CreateVendor registers a vendor.
func (h *HTTPHandler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	var v repository.Vendor
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil || v.Name == "" {
		h.writeError(w, apperrors.InvalidInput("name", "is required"))
		return
	}
	v.EntityID = entityID
	if err := h.vendors.Create(r.Context(), &v); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, &v)
}

// UpdateVendor updates a vendor.
func (h *HTTPHandler) UpdateVendor(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	var v repository.Vendor
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil || v.ID == "" {
		h.writeError(w, apperrors.InvalidInput("id", "is required"))
		return
	}
	v.EntityID = entityID
	if err := h.vendors.Update(r.Context(), &v); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &v)
}

// ListVendors lists vendors.
func (h *HTTPHandler) ListVendors(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	vendors, err := h.vendors.List(r.Context(), entityID, r.URL.Query().Get("active") == "true")
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"vendors": vendors})
}

// DeleteVendor removes a vendor.
func (h *HTTPHandler) DeleteVendor(w http.ResponseWriter, r *http.Request) {
	entityID, _, ok := h.actor(w, r)
	if !ok {
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		h.writeError(w, apperrors.InvalidInput("id", "is required"))
		return
	}
	if err := h.vendors.Delete(r.Context(), id, entityID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Quotation comparison ──────────────────────────────────────────────────────

type analyzeRequest struct {
	Files []service.QuotationFile `json:"files"`
}

// AnalyzeQuotations runs the extraction/comparison pipeline over the uploaded
// quotation documents and returns the full analysis.
func (h *HTTPHandler) AnalyzeQuotations(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "invalid request body"))
		return
	}

	analysis, err := h.comparisons.Analyze(r.Context(), req.Files)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, analysis)
}

type exportRequest struct {
	Format   string                      `json:"format"` // pdf | csv | xlsx
	Analysis *service.ComparisonAnalysis `json:"analysis"`
}

// ExportComparison renders a previously computed analysis as PDF, CSV or Excel.
func (h *HTTPHandler) ExportComparison(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Analysis == nil {
		h.writeError(w, apperrors.InvalidInput("analysis", "is required"))
		return
	}

	switch req.Format {
	case "pdf":
		data, err := export.RenderComparisonPDF(req.Analysis, export.PDFOptions{CompanyName: h.companyName})
		if err != nil {
			h.writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", "attachment; filename=quotation_comparison.pdf")
		w.Write(data)

	case "csv", "":
		headers, rows := export.ComparisonTable(req.Analysis)
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", "attachment; filename=quotation_comparison.csv")
		if err := export.WriteCSV(w, headers, rows); err != nil {
			h.log.Error().Err(err).Msg("Failed to stream CSV export")
		}

	case "xlsx":
		headers, rows := export.ComparisonTable(req.Analysis)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", "attachment; filename=quotation_comparison.xlsx")
		if err := export.WriteXLSX(w, "Comparison", headers, rows); err != nil {
			h.log.Error().Err(err).Msg("Failed to stream Excel export")
		}

	default:
		h.writeError(w, apperrors.InvalidInput("format", "must be pdf, csv or xlsx"))
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// actor extracts the caller's entity and user from request headers. The API
// gateway terminates authentication and injects these.
func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (entityID, userID string, ok bool) {
	entityID = r.Header.Get("X-Entity-ID")
	userID = r.Header.Get("X-User-ID")
	if entityID == "" || userID == "" {
		h.writeError(w, apperrors.New(apperrors.CodeUnauthorized, "missing X-Entity-ID or X-User-ID header"))
		return "", "", false
	}
	return entityID, userID, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			h.log.Error().Err(err).Msg("Failed to encode response")
		}
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  string(apperrors.CodeOf(err)),
	})
}
