package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAIClient returns canned extractions keyed by file name. Unknown files
// fail extraction.
type fakeAIClient struct {
	extractions map[string]*ExtractedQuotation
	comparison  *AIComparison
	compareErr  error
}

func (f *fakeAIClient) ExtractQuotation(_ context.Context, file QuotationFile) (*ExtractedQuotation, error) {
	q, ok := f.extractions[file.FileName]
	if !ok {
		return nil, errors.New("model returned no parseable JSON")
	}
	copied := *q
	return &copied, nil
}

func (f *fakeAIClient) CompareQuotations(_ context.Context, _ []ExtractedQuotation) (*AIComparison, error) {
	if f.compareErr != nil {
		return nil, f.compareErr
	}
	return f.comparison, nil
}

func quotation(supplier string, total float64, items ...QuotationItem) *ExtractedQuotation {
	return &ExtractedQuotation{
		Supplier: SupplierInfo{Name: supplier},
		Items:    items,
		Commercial: CommercialTerms{
			Subtotal: total,
			Total:    total,
			Currency: "AED",
		},
	}
}

// ── Fuzzy supplier matching ───────────────────────────────────────────────────

func TestFindSupplierDataExactMatch(t *testing.T) {
	m := map[string]string{"Al Futtaim Trading LLC": "a", "Gulf Supplies Co": "b"}
	v, ok := FindSupplierData(m, "Gulf Supplies Co", nil)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestFindSupplierDataTruncatedTarget(t *testing.T) {
	// A truncated column header must still resolve to the full map key.
	m := map[string]string{"Al Futtaim Trading LLC": "a"}
	v, ok := FindSupplierData(m, "Al Futtaim Tradi", nil)
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestFindSupplierDataTruncatedKey(t *testing.T) {
	// The map key may be the truncated side.
	m := map[string]string{"Al Futtaim Tradi": "a"}
	v, ok := FindSupplierData(m, "Al Futtaim Trading LLC", nil)
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestFindSupplierDataIgnoresCaseAndPunctuation(t *testing.T) {
	m := map[string]string{"AL-FUTTAIM TRADING, L.L.C.": "a"}
	v, ok := FindSupplierData(m, "al futtaim trading llc", nil)
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestFindSupplierDataSubstring(t *testing.T) {
	m := map[string]string{"Gulf Supplies Co (Dubai Branch)": "a"}
	v, ok := FindSupplierData(m, "Supplies Co", nil)
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestFindSupplierDataRelaysThroughExtractions(t *testing.T) {
	// Neither the map key nor the target match directly, but the extracted
	// quotations carry the full name that links them.
	m := map[string]string{"Al Futtaim Trading LLC": "a"}
	extracted := []ExtractedQuotation{
		{Supplier: SupplierInfo{Name: "Al Futtaim Trading LLC"}},
	}
	v, ok := FindSupplierData(m, "Al Futtaim", extracted)
	require.True(t, ok)
	assert.Equal(t, "a", v)
}

func TestFindSupplierDataNoMatch(t *testing.T) {
	m := map[string]string{"Gulf Supplies Co": "a"}
	_, ok := FindSupplierData(m, "Emirates Hardware", nil)
	assert.False(t, ok)

	_, ok = FindSupplierData(map[string]string{}, "anything", nil)
	assert.False(t, ok)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "alfuttaimtradingllc", normalizeName("Al-Futtaim Trading, L.L.C."))
	assert.Equal(t, "", normalizeName("  --  "))
}

// ── Supplier column resolution ────────────────────────────────────────────────

func TestSupplierColumnsPrefersQuotationOrder(t *testing.T) {
	a := &ComparisonAnalysis{
		Quotations: []ExtractedQuotation{
			{Supplier: SupplierInfo{Name: "Zeta Traders"}},
			{Supplier: SupplierInfo{Name: "Alpha Supplies"}},
		},
		Commercial: map[string]CommercialTerms{"Alpha Supplies": {}, "Zeta Traders": {}},
	}
	// Upload order wins over alphabetical map order.
	assert.Equal(t, []string{"Zeta Traders", "Alpha Supplies"}, SupplierColumns(a))
}

func TestSupplierColumnsFallsBackToItemMatrix(t *testing.T) {
	a := &ComparisonAnalysis{
		Items: []ItemComparisonEntry{
			{Suppliers: map[string]SupplierQuote{"B Co": {}, "A Co": {}}},
			{Suppliers: map[string]SupplierQuote{"C Co": {}}},
		},
	}
	assert.Equal(t, []string{"A Co", "B Co", "C Co"}, SupplierColumns(a))
}

func TestSupplierColumnsFallsBackToCommercialKeys(t *testing.T) {
	a := &ComparisonAnalysis{
		Commercial: map[string]CommercialTerms{"B Co": {}, "A Co": {}},
	}
	assert.Equal(t, []string{"A Co", "B Co"}, SupplierColumns(a))
}

// ── Item comparison matrix ────────────────────────────────────────────────────

func TestBuildItemComparisonLowestAndAverage(t *testing.T) {
	quotations := []ExtractedQuotation{
		*quotation("Alpha Supplies", 1000,
			QuotationItem{Description: "Steel pipe 2in", Quantity: 10, Unit: "pcs", UnitPrice: 100, Total: 1000}),
		*quotation("Beta Traders", 900,
			QuotationItem{Description: "Steel pipe 2in", Quantity: 10, Unit: "pcs", UnitPrice: 90, Total: 900}),
	}

	items := BuildItemComparison(quotations)
	require.Len(t, items, 1)

	entry := items[0]
	assert.Equal(t, "Steel pipe 2in", entry.Item)
	assert.Equal(t, "Beta Traders", entry.LowestSupplier)
	assert.Equal(t, 900.0, entry.LowestTotal)
	assert.Equal(t, 950.0, entry.AverageTotal)
	assert.Len(t, entry.Suppliers, 2)
}

func TestBuildItemComparisonKeepsFirstSeenOrder(t *testing.T) {
	quotations := []ExtractedQuotation{
		*quotation("Alpha Supplies", 0,
			QuotationItem{Description: "Cement bag"},
			QuotationItem{Description: "Rebar 12mm"}),
		*quotation("Beta Traders", 0,
			QuotationItem{Description: "Rebar 12mm"},
			QuotationItem{Description: "Safety helmet"}),
	}

	items := BuildItemComparison(quotations)
	require.Len(t, items, 3)
	assert.Equal(t, "Cement bag", items[0].Item)
	assert.Equal(t, "Rebar 12mm", items[1].Item)
	assert.Equal(t, "Safety helmet", items[2].Item)
}

func TestBuildItemComparisonTieResolvesDeterministically(t *testing.T) {
	quotations := []ExtractedQuotation{
		*quotation("Beta Traders", 0,
			QuotationItem{Description: "Cement bag", Total: 500}),
		*quotation("Alpha Supplies", 0,
			QuotationItem{Description: "Cement bag", Total: 500}),
	}

	items := BuildItemComparison(quotations)
	require.Len(t, items, 1)
	// Sorted key order: Alpha before Beta on equal totals.
	assert.Equal(t, "Alpha Supplies", items[0].LowestSupplier)
}

// ── Fallback ranking ──────────────────────────────────────────────────────────

func TestDefaultAnalysisRanksByGrandTotal(t *testing.T) {
	quotations := []ExtractedQuotation{
		*quotation("Alpha Supplies", 12000),
		*quotation("Beta Traders", 9000),
		*quotation("Gamma LLC", 15000),
	}

	cmp := DefaultAnalysis(quotations)
	require.Len(t, cmp.Ranking, 3)
	assert.Equal(t, "Beta Traders", cmp.Ranking[0].Supplier)
	assert.Equal(t, 1, cmp.Ranking[0].Rank)
	assert.Equal(t, "Gamma LLC", cmp.Ranking[2].Supplier)
	assert.Equal(t, "Lowest total price: Beta Traders", cmp.Recommendation)
}

func TestDefaultAnalysisPlaceholdersRankLast(t *testing.T) {
	quotations := []ExtractedQuotation{
		{Supplier: SupplierInfo{Name: "failed_scan"}, Placeholder: true},
		*quotation("Alpha Supplies", 12000),
	}

	cmp := DefaultAnalysis(quotations)
	require.Len(t, cmp.Ranking, 2)
	assert.Equal(t, "Alpha Supplies", cmp.Ranking[0].Supplier)
	assert.Equal(t, "failed_scan", cmp.Ranking[1].Supplier)
}

// ── Analyze pipeline ──────────────────────────────────────────────────────────

func TestAnalyzeRequiresFiles(t *testing.T) {
	svc := NewComparisonService(&fakeAIClient{}, testLogger())
	_, err := svc.Analyze(context.Background(), nil)
	assert.Error(t, err)
}

func TestAnalyzeBuildsFullAnalysis(t *testing.T) {
	ai := &fakeAIClient{
		extractions: map[string]*ExtractedQuotation{
			"alpha.pdf": quotation("Alpha Supplies", 12000,
				QuotationItem{Description: "Cement bag", Quantity: 100, Unit: "bag", UnitPrice: 120, Total: 12000}),
			"beta.pdf": quotation("Beta Traders", 9000,
				QuotationItem{Description: "Cement bag", Quantity: 100, Unit: "bag", UnitPrice: 90, Total: 9000}),
		},
		comparison: &AIComparison{
			Ranking: []SupplierRanking{
				{Rank: 1, Supplier: "Beta Traders", GrandTotal: 9000},
				{Rank: 2, Supplier: "Alpha Supplies", GrandTotal: 12000},
			},
			Recommendation: "Beta Traders offers the best value.",
		},
	}
	svc := NewComparisonService(ai, testLogger())

	analysis, err := svc.Analyze(context.Background(), []QuotationFile{
		{FileName: "alpha.pdf", MimeType: "application/pdf"},
		{FileName: "beta.pdf", MimeType: "application/pdf"},
	})
	require.NoError(t, err)

	assert.Len(t, analysis.Quotations, 2)
	assert.Equal(t, "alpha.pdf", analysis.Quotations[0].SourceFile)
	require.Len(t, analysis.Items, 1)
	assert.Equal(t, "Beta Traders", analysis.Items[0].LowestSupplier)
	assert.Equal(t, "AED", analysis.Currency)
	assert.Equal(t, "Beta Traders offers the best value.", analysis.Recommendation)
	assert.False(t, analysis.GeneratedAt.IsZero())
}

func TestAnalyzeDegradesFailedExtractionToPlaceholder(t *testing.T) {
	ai := &fakeAIClient{
		extractions: map[string]*ExtractedQuotation{
			"alpha.pdf": quotation("Alpha Supplies", 12000),
		},
	}
	svc := NewComparisonService(ai, testLogger())

	analysis, err := svc.Analyze(context.Background(), []QuotationFile{
		{FileName: "alpha.pdf"},
		{FileName: "uploads/corrupt_scan.pdf"},
	})
	require.NoError(t, err)

	require.Len(t, analysis.Quotations, 2)
	placeholder := analysis.Quotations[1]
	assert.True(t, placeholder.Placeholder)
	assert.Equal(t, "corrupt_scan", placeholder.Supplier.Name)
	assert.Equal(t, "uploads/corrupt_scan.pdf", placeholder.SourceFile)

	// Placeholders contribute no commercial terms.
	_, ok := analysis.Commercial["corrupt_scan"]
	assert.False(t, ok)
}

func TestAnalyzeFallsBackWhenAIComparisonFails(t *testing.T) {
	ai := &fakeAIClient{
		extractions: map[string]*ExtractedQuotation{
			"alpha.pdf": quotation("Alpha Supplies", 12000),
			"beta.pdf":  quotation("Beta Traders", 9000),
		},
		compareErr: errors.New("model timeout"),
	}
	svc := NewComparisonService(ai, testLogger())

	analysis, err := svc.Analyze(context.Background(), []QuotationFile{
		{FileName: "alpha.pdf"},
		{FileName: "beta.pdf"},
	})
	require.NoError(t, err)

	require.Len(t, analysis.Ranking, 2)
	assert.Equal(t, "Beta Traders", analysis.Ranking[0].Supplier)
	assert.Equal(t, "Lowest total price: Beta Traders", analysis.Recommendation)
}

func TestAnalyzeNamesSupplierFromFileWhenExtractionOmitsIt(t *testing.T) {
	ai := &fakeAIClient{
		extractions: map[string]*ExtractedQuotation{
			"gulf_supplies_quote.pdf": quotation("", 7000),
		},
	}
	svc := NewComparisonService(ai, testLogger())

	analysis, err := svc.Analyze(context.Background(), []QuotationFile{
		{FileName: "gulf_supplies_quote.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, "gulf_supplies_quote", analysis.Quotations[0].Supplier.Name)
}
