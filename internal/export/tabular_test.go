package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mashareq-erp/be-procurement/internal/service"
)

func sampleAnalysis() *service.ComparisonAnalysis {
	return &service.ComparisonAnalysis{
		Quotations: []service.ExtractedQuotation{
			{Supplier: service.SupplierInfo{Name: "Alpha Supplies"}},
			{Supplier: service.SupplierInfo{Name: "Beta Traders"}},
		},
		Items: []service.ItemComparisonEntry{
			{
				Item:     "Cement bag",
				Quantity: 100,
				Unit:     "bag",
				Suppliers: map[string]service.SupplierQuote{
					"Alpha Supplies": {UnitPrice: 120, Total: 12000},
					"Beta Traders":   {UnitPrice: 90, Total: 9000},
				},
				LowestSupplier: "Beta Traders",
				LowestTotal:    9000,
				AverageTotal:   10500,
			},
			{
				Item:     "Rebar 12mm",
				Quantity: 2.5,
				Unit:     "ton",
				Suppliers: map[string]service.SupplierQuote{
					"Alpha Supplies": {UnitPrice: 2400, Total: 6000},
				},
				LowestSupplier: "Alpha Supplies",
				LowestTotal:    6000,
				AverageTotal:   6000,
			},
		},
		Commercial: map[string]service.CommercialTerms{
			"Alpha Supplies": {Total: 18000, Currency: "AED", PaymentTerms: "30 days"},
			"Beta Traders":   {Total: 9000, Currency: "AED", PaymentTerms: "advance"},
		},
		Ranking: []service.SupplierRanking{
			{Rank: 1, Supplier: "Beta Traders", GrandTotal: 9000},
			{Rank: 2, Supplier: "Alpha Supplies", GrandTotal: 18000},
		},
		Recommendation: "Beta Traders offers the lowest total.",
		Currency:       "AED",
		GeneratedAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestComparisonTableLayout(t *testing.T) {
	headers, rows := ComparisonTable(sampleAnalysis())

	assert.Equal(t, []string{
		"#", "Item", "Qty", "Unit",
		"Alpha Supplies Rate", "Alpha Supplies Amount",
		"Beta Traders Rate", "Beta Traders Amount",
		"Lowest Supplier", "Lowest Total", "Average Total",
	}, headers)

	require.Len(t, rows, 2)
	assert.Equal(t, []string{
		"1", "Cement bag", "100", "bag",
		"120.00", "12000.00", "90.00", "9000.00",
		"Beta Traders", "9000.00", "10500.00",
	}, rows[0])

	// A supplier that did not quote an item gets dash cells.
	assert.Equal(t, []string{
		"2", "Rebar 12mm", "2.50", "ton",
		"2400.00", "6000.00", "-", "-",
		"Alpha Supplies", "6000.00", "6000.00",
	}, rows[1])
}

func TestComparisonTableResolvesTruncatedSupplierKeys(t *testing.T) {
	a := sampleAnalysis()
	// Item matrix carries a truncated supplier key, as extraction sometimes
	// produces; the column must still be filled.
	a.Items = a.Items[:1]
	a.Items[0].Suppliers = map[string]service.SupplierQuote{
		"Alpha Suppl":  {UnitPrice: 120, Total: 12000},
		"Beta Traders": {UnitPrice: 90, Total: 9000},
	}

	_, rows := ComparisonTable(a)
	require.Len(t, rows, 1)
	assert.Equal(t, "120.00", rows[0][4])
	assert.Equal(t, "12000.00", rows[0][5])
}

func TestWriteCSVStartsWithBOM(t *testing.T) {
	var buf bytes.Buffer
	headers, rows := ComparisonTable(sampleAnalysis())
	require.NoError(t, WriteCSV(&buf, headers, rows))

	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}))

	reader := csv.NewReader(bytes.NewReader(out[3:]))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, headers, records[0])
	assert.Equal(t, rows[0], records[1])
}

func TestWriteCSVPreservesArabicText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []string{"المورد"}, [][]string{{"شركة الخليج"}}))
	assert.True(t, strings.Contains(buf.String(), "شركة الخليج"))
}

func TestWriteXLSXProducesWorkbook(t *testing.T) {
	var buf bytes.Buffer
	headers, rows := ComparisonTable(sampleAnalysis())
	require.NoError(t, WriteXLSX(&buf, "Comparison", headers, rows))

	// XLSX is a ZIP container.
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("PK")))
	assert.Greater(t, buf.Len(), 1000)
}

func TestFmtQty(t *testing.T) {
	assert.Equal(t, "100", fmtQty(100))
	assert.Equal(t, "2.50", fmtQty(2.5))
}
