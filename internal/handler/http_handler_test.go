package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/logger"
	"github.com/mashareq-erp/be-procurement/internal/repository"
	"github.com/mashareq-erp/be-procurement/internal/service"
)

// ── Fakes ─────────────────────────────────────────────────────────────────────

type fakeDocumentStore struct {
	docs map[string]*repository.Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: make(map[string]*repository.Document)}
}

func (f *fakeDocumentStore) Create(_ context.Context, d *repository.Document) error {
	d.ID = "doc-1"
	f.docs[d.ID] = d
	return nil
}

func (f *fakeDocumentStore) GetByID(_ context.Context, id, entityID string) (*repository.Document, error) {
	d, ok := f.docs[id]
	if !ok || d.EntityID != entityID {
		return nil, apperrors.NotFound("document", id)
	}
	return d, nil
}

func (f *fakeDocumentStore) List(_ context.Context, entityID, docType, status string, _, _ int) ([]*repository.Document, error) {
	var out []*repository.Document
	for _, d := range f.docs {
		if d.EntityID != entityID {
			continue
		}
		if docType != "" && d.DocType != docType {
			continue
		}
		if status != "" && d.Status != status {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeDocumentStore) UpdateStatus(_ context.Context, id, entityID, status string) error {
	d, err := f.GetByID(context.Background(), id, entityID)
	if err != nil {
		return err
	}
	d.Status = status
	d.RejectionReason = nil
	return nil
}

func (f *fakeDocumentStore) SetRejection(_ context.Context, id, entityID, reason string) error {
	d, err := f.GetByID(context.Background(), id, entityID)
	if err != nil {
		return err
	}
	d.Status = repository.DocumentRejected
	d.RejectionReason = &reason
	return nil
}

// stubThresholdStore returns no active thresholds, so any submission
// auto-approves.
type stubThresholdStore struct{}

func (stubThresholdStore) Create(context.Context, *repository.ApprovalThreshold) error { return nil }
func (stubThresholdStore) GetByID(context.Context, string, string) (*repository.ApprovalThreshold, error) {
	return nil, apperrors.NotFound("threshold", "")
}
func (stubThresholdStore) List(context.Context, string, string, bool) ([]*repository.ApprovalThreshold, error) {
	return nil, nil
}
func (stubThresholdStore) ListActive(context.Context, string, string) ([]*repository.ApprovalThreshold, error) {
	return nil, nil
}
func (stubThresholdStore) Update(context.Context, *repository.ApprovalThreshold) error { return nil }
func (stubThresholdStore) Delete(context.Context, string, string) error                { return nil }

type stubWorkflowStore struct{}

func (stubWorkflowStore) Create(context.Context, *repository.ApprovalWorkflow, []*repository.ApprovalStep) error {
	return nil
}
func (stubWorkflowStore) GetByID(context.Context, string) (*repository.ApprovalWorkflow, error) {
	return nil, apperrors.NotFound("workflow", "")
}
func (stubWorkflowStore) GetByReference(context.Context, string, string) (*repository.ApprovalWorkflow, error) {
	return nil, nil
}
func (stubWorkflowStore) AdvanceStep(context.Context, string, int) error      { return nil }
func (stubWorkflowStore) Finish(context.Context, string, string, time.Time) error { return nil }

type stubStepStore struct{}

func (stubStepStore) GetByWorkflowID(context.Context, string) ([]*repository.ApprovalStep, error) {
	return nil, nil
}
func (stubStepStore) GetStep(context.Context, string, int) (*repository.ApprovalStep, error) {
	return nil, apperrors.NotFound("approval step", "")
}
func (stubStepStore) GetPendingForRoles(context.Context, string, []string) ([]*repository.ApprovalStep, error) {
	return nil, nil
}
func (stubStepStore) RecordAction(context.Context, string, string, string, *string) error {
	return nil
}

type stubAuditStore struct{}

func (stubAuditStore) Append(context.Context, *repository.AuditEntry) error { return nil }
func (stubAuditStore) GetByReference(context.Context, string, string) ([]*repository.AuditEntry, error) {
	return nil, nil
}

type stubIdentityClient struct{}

func (stubIdentityClient) GetUsersWithRole(context.Context, string, string) ([]string, error) {
	return nil, nil
}
func (stubIdentityClient) GetUserRoles(context.Context, string, string) ([]string, error) {
	return nil, nil
}

type stubAIClient struct{}

func (stubAIClient) ExtractQuotation(_ context.Context, file service.QuotationFile) (*service.ExtractedQuotation, error) {
	return &service.ExtractedQuotation{
		Supplier:   service.SupplierInfo{Name: "Alpha Supplies"},
		Commercial: service.CommercialTerms{Total: 1000, Currency: "AED"},
	}, nil
}

func (stubAIClient) CompareQuotations(context.Context, []service.ExtractedQuotation) (*service.AIComparison, error) {
	return nil, nil
}

// ── Fixture ───────────────────────────────────────────────────────────────────

func testHandler() (*HTTPHandler, *fakeDocumentStore) {
	log := &logger.Logger{Logger: zerolog.Nop()}
	docs := newFakeDocumentStore()

	approvals := service.NewApprovalService(stubThresholdStore{}, stubWorkflowStore{},
		stubStepStore{}, stubAuditStore{}, stubIdentityClient{}, nil, "PROCUREMENT_ADMIN", log)
	thresholds := service.NewThresholdService(stubThresholdStore{}, log)
	comparisons := service.NewComparisonService(stubAIClient{}, log)

	h := NewHTTPHandler(docs, nil, approvals, thresholds, comparisons, "Mashareq Enterprises", log)
	return h, docs
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, path string, body any, withActor bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if withActor {
		req.Header.Set("X-Entity-ID", "entity-1")
		req.Header.Set("X-User-ID", "user-1")
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestCreateDocumentRequiresActorHeaders(t *testing.T) {
	h, _ := testHandler()
	rec := doJSON(t, h.CreateDocument, http.MethodPost, "/api/v1/documents", nil, false)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateDocumentValidates(t *testing.T) {
	h, _ := testHandler()

	rec := doJSON(t, h.CreateDocument, http.MethodPost, "/api/v1/documents", map[string]any{
		"code": "PR-1", "doc_type": "invoice", "amount": 100,
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h.CreateDocument, http.MethodPost, "/api/v1/documents", map[string]any{
		"code": "PR-1", "doc_type": "purchase_request", "amount": 0,
	}, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateDocumentStartsAsDraft(t *testing.T) {
	h, docs := testHandler()

	rec := doJSON(t, h.CreateDocument, http.MethodPost, "/api/v1/documents", map[string]any{
		"code": "PR-1", "doc_type": "purchase_request", "title": "Office chairs",
		"amount": 50000, "currency": "AED",
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	d := docs.docs["doc-1"]
	require.NotNil(t, d)
	assert.Equal(t, repository.DocumentDraft, d.Status)
	assert.Equal(t, "user-1", d.CreatedBy)
	assert.Equal(t, "entity-1", d.EntityID)
}

func TestSubmitDocumentAutoApprovalSyncsStatus(t *testing.T) {
	h, docs := testHandler()
	docs.docs["doc-1"] = &repository.Document{
		ID: "doc-1", EntityID: "entity-1", Code: "PR-1",
		DocType: repository.ModulePurchaseRequest, Amount: 500, Currency: "AED",
		Status: repository.DocumentDraft, CreatedBy: "user-1",
	}

	rec := doJSON(t, h.SubmitDocument, http.MethodPost, "/api/v1/documents/submit",
		map[string]any{"id": "doc-1"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["auto_approved"])

	// No thresholds configured, so the document goes straight to approved.
	assert.Equal(t, repository.DocumentApproved, docs.docs["doc-1"].Status)
}

func TestSubmitDocumentRejectsWrongStatus(t *testing.T) {
	h, docs := testHandler()
	docs.docs["doc-1"] = &repository.Document{
		ID: "doc-1", EntityID: "entity-1",
		DocType: repository.ModulePurchaseRequest, Amount: 500,
		Status: repository.DocumentApproved,
	}

	rec := doJSON(t, h.SubmitDocument, http.MethodPost, "/api/v1/documents/submit",
		map[string]any{"id": "doc-1"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResubmitRequiresRejectedStatus(t *testing.T) {
	h, docs := testHandler()
	docs.docs["doc-1"] = &repository.Document{
		ID: "doc-1", EntityID: "entity-1",
		DocType: repository.ModulePurchaseRequest, Amount: 500,
		Status: repository.DocumentDraft,
	}

	rec := doJSON(t, h.ResubmitDocument, http.MethodPost, "/api/v1/documents/resubmit",
		map[string]any{"id": "doc-1"}, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	docs.docs["doc-1"].Status = repository.DocumentRejected
	rec = doJSON(t, h.ResubmitDocument, http.MethodPost, "/api/v1/documents/resubmit",
		map[string]any{"id": "doc-1"}, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetDocumentNotFound(t *testing.T) {
	h, _ := testHandler()
	rec := doJSON(t, h.GetDocument, http.MethodGet, "/api/v1/documents/get?id=missing", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp["code"])
}

func TestAnalyzeQuotations(t *testing.T) {
	h, _ := testHandler()

	rec := doJSON(t, h.AnalyzeQuotations, http.MethodPost, "/api/v1/comparisons/analyze",
		map[string]any{"files": []map[string]any{{"file_name": "alpha.pdf"}}}, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var analysis service.ComparisonAnalysis
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
	require.Len(t, analysis.Quotations, 1)
	assert.Equal(t, "Alpha Supplies", analysis.Quotations[0].Supplier.Name)
	require.Len(t, analysis.Ranking, 1)
}

func TestExportComparisonCSV(t *testing.T) {
	h, _ := testHandler()

	rec := doJSON(t, h.ExportComparison, http.MethodPost, "/api/v1/comparisons/export",
		map[string]any{"format": "csv", "analysis": service.ComparisonAnalysis{
			Quotations: []service.ExtractedQuotation{{Supplier: service.SupplierInfo{Name: "Alpha Supplies"}}},
		}}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte{0xEF, 0xBB, 0xBF}))
}

func TestExportComparisonPDF(t *testing.T) {
	h, _ := testHandler()

	rec := doJSON(t, h.ExportComparison, http.MethodPost, "/api/v1/comparisons/export",
		map[string]any{"format": "pdf", "analysis": service.ComparisonAnalysis{
			Quotations: []service.ExtractedQuotation{{Supplier: service.SupplierInfo{Name: "Alpha Supplies"}}},
		}}, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}

func TestExportComparisonUnknownFormat(t *testing.T) {
	h, _ := testHandler()

	rec := doJSON(t, h.ExportComparison, http.MethodPost, "/api/v1/comparisons/export",
		map[string]any{"format": "docx", "analysis": service.ComparisonAnalysis{}}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
