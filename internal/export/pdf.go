package export

import (
	"bytes"
	"strconv"

	"github.com/go-pdf/fpdf"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/service"
)

// PDFOptions carries branding for the report header.
type PDFOptions struct {
	CompanyName string
	Title       string
}

const (
	pdfLineHeight   = 5.0
	pdfHeaderHeight = 7.0
	pdfBottomGuard  = 20.0
)

// comparisonPDF accumulates layout state for one render.
type comparisonPDF struct {
	pdf       *fpdf.Fpdf
	analysis  *service.ComparisonAnalysis
	suppliers []string

	left   float64
	usable float64
	pageH  float64

	// item table column widths
	noW, descW, qtyW, unitW, rateW, amountW, lowW, avgW float64
}

// RenderComparisonPDF renders the full comparison report: header, supplier
// summary, term comparison, item-wise pricing, price summary, recommendation
// and signature blocks. Landscape A4; the item table re-renders its header
// row after every page break.
func RenderComparisonPDF(a *service.ComparisonAnalysis, opts PDFOptions) ([]byte, error) {
	if a == nil {
		return nil, apperrors.InvalidInput("analysis", "is required")
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pageW, pageH := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()

	r := &comparisonPDF{
		pdf:       pdf,
		analysis:  a,
		suppliers: service.SupplierColumns(a),
		left:      left,
		usable:    pageW - left - right,
		pageH:     pageH,
	}
	r.computeItemColumns()

	r.renderHeader(opts)
	r.renderSupplierSummary()
	r.renderTermComparison()
	r.renderItemTable()
	r.renderPriceSummary()
	r.renderRecommendation()
	r.renderSignatureBlocks()

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to render comparison pdf")
	}
	return buf.Bytes(), nil
}

// computeItemColumns distributes the usable width over the fixed columns and
// the per-supplier rate/amount sub-columns.
func (r *comparisonPDF) computeItemColumns() {
	r.noW = 8
	r.qtyW = 14
	r.unitW = 14
	r.lowW = 26
	r.avgW = 22

	fixed := r.noW + r.qtyW + r.unitW + r.lowW + r.avgW
	remaining := r.usable - fixed

	n := len(r.suppliers)
	if n == 0 {
		r.descW = remaining
		return
	}

	// Description keeps at least a third of what is left; the rest is split
	// evenly into rate/amount pairs.
	r.descW = remaining / 3
	if r.descW < 40 {
		r.descW = 40
	}
	perSupplier := (remaining - r.descW) / float64(n)
	r.rateW = perSupplier * 0.45
	r.amountW = perSupplier * 0.55
}

func (r *comparisonPDF) ensureSpace(needed float64, onBreak func()) {
	if r.pdf.GetY()+needed <= r.pageH-pdfBottomGuard {
		return
	}
	r.pdf.AddPage()
	if onBreak != nil {
		onBreak()
	}
}

// ── Sections ──────────────────────────────────────────────────────────────────

func (r *comparisonPDF) renderHeader(opts PDFOptions) {
	pdf := r.pdf

	title := opts.Title
	if title == "" {
		title = "Quotation Comparison Report"
	}

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(r.usable, 8, opts.CompanyName, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(r.usable, 7, title, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	meta := "Generated: " + r.analysis.GeneratedAt.Format("2006-01-02 15:04")
	if r.analysis.Currency != "" {
		meta += "    Currency: " + r.analysis.Currency
	}
	pdf.CellFormat(r.usable, 5, meta, "", 1, "C", false, 0, "")
	pdf.Ln(3)
}

// renderSupplierSummary lists each supplier with contact and totals,
// highlighting the lowest grand total.
func (r *comparisonPDF) renderSupplierSummary() {
	pdf := r.pdf
	if len(r.suppliers) == 0 {
		return
	}

	lowest := r.lowestGrandTotalSupplier()

	r.sectionTitle("Supplier Summary")

	nameW := r.usable * 0.28
	contactW := r.usable * 0.30
	numW := (r.usable - nameW - contactW) / 3

	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(220, 220, 220)
	pdf.CellFormat(nameW, pdfHeaderHeight, "Supplier", "1", 0, "L", true, 0, "")
	pdf.CellFormat(contactW, pdfHeaderHeight, "Contact", "1", 0, "L", true, 0, "")
	pdf.CellFormat(numW, pdfHeaderHeight, "Subtotal", "1", 0, "R", true, 0, "")
	pdf.CellFormat(numW, pdfHeaderHeight, "Tax", "1", 0, "R", true, 0, "")
	pdf.CellFormat(numW, pdfHeaderHeight, "Grand Total", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 8)
	for _, name := range r.suppliers {
		terms, ok := service.FindSupplierData(r.analysis.Commercial, name, r.analysis.Quotations)
		contact := r.supplierContact(name)

		fill := ok && name == lowest
		if fill {
			pdf.SetFillColor(200, 235, 200)
		}

		r.ensureSpace(pdfHeaderHeight, nil)
		pdf.CellFormat(nameW, pdfHeaderHeight, name, "1", 0, "L", fill, 0, "")
		pdf.CellFormat(contactW, pdfHeaderHeight, contact, "1", 0, "L", fill, 0, "")
		if ok {
			pdf.CellFormat(numW, pdfHeaderHeight, fmtAmount(terms.Subtotal), "1", 0, "R", fill, 0, "")
			pdf.CellFormat(numW, pdfHeaderHeight, fmtAmount(terms.Tax), "1", 0, "R", fill, 0, "")
			pdf.CellFormat(numW, pdfHeaderHeight, fmtAmount(terms.Total), "1", 1, "R", fill, 0, "")
		} else {
			pdf.CellFormat(numW, pdfHeaderHeight, "-", "1", 0, "C", false, 0, "")
			pdf.CellFormat(numW, pdfHeaderHeight, "-", "1", 0, "C", false, 0, "")
			pdf.CellFormat(numW, pdfHeaderHeight, "No data", "1", 1, "C", false, 0, "")
		}
	}
	pdf.Ln(4)
}

func (r *comparisonPDF) renderTermComparison() {
	pdf := r.pdf
	if len(r.suppliers) == 0 {
		return
	}

	r.sectionTitle("Commercial Terms")

	labelW := r.usable * 0.18
	colW := (r.usable - labelW) / float64(len(r.suppliers))

	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(220, 220, 220)
	pdf.CellFormat(labelW, pdfHeaderHeight, "Term", "1", 0, "L", true, 0, "")
	for _, name := range r.suppliers {
		pdf.CellFormat(colW, pdfHeaderHeight, name, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	terms := []struct {
		label string
		get   func(service.CommercialTerms) string
	}{
		{"Payment", func(t service.CommercialTerms) string { return t.PaymentTerms }},
		{"Delivery", func(t service.CommercialTerms) string { return t.DeliveryTerms }},
		{"Validity", func(t service.CommercialTerms) string { return t.Validity }},
		{"Warranty", func(t service.CommercialTerms) string { return t.Warranty }},
	}

	pdf.SetFont("Arial", "", 8)
	for _, term := range terms {
		r.ensureSpace(pdfHeaderHeight, nil)
		pdf.CellFormat(labelW, pdfHeaderHeight, term.label, "1", 0, "L", false, 0, "")
		for _, name := range r.suppliers {
			value := "-"
			if t, ok := service.FindSupplierData(r.analysis.Commercial, name, r.analysis.Quotations); ok {
				if v := term.get(t); v != "" {
					value = v
				}
			}
			pdf.CellFormat(colW, pdfHeaderHeight, value, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

// renderItemTable is the paginated item-wise pricing table: fixed columns,
// per-supplier rate/amount sub-columns, dynamic row heights for wrapped
// descriptions and a header re-render on every page break.
func (r *comparisonPDF) renderItemTable() {
	pdf := r.pdf
	if len(r.analysis.Items) == 0 {
		return
	}

	r.sectionTitle("Item-wise Pricing")
	r.renderItemTableHeader()

	pdf.SetFont("Arial", "", 8)
	for i, entry := range r.analysis.Items {
		lines := pdf.SplitLines([]byte(entry.Item), r.descW-2)
		rowH := pdfLineHeight * float64(len(lines))
		if rowH < pdfHeaderHeight {
			rowH = pdfHeaderHeight
		}

		r.ensureSpace(rowH, func() {
			r.renderItemTableHeader()
			pdf.SetFont("Arial", "", 8)
		})

		y := pdf.GetY()
		x := r.left

		pdf.SetXY(x, y)
		pdf.CellFormat(r.noW, rowH, strconv.Itoa(i+1), "1", 0, "C", false, 0, "")
		x += r.noW

		// Description cell: bordered box with manually placed wrapped lines.
		pdf.Rect(x, y, r.descW, rowH, "D")
		for li, line := range lines {
			pdf.SetXY(x+1, y+pdfLineHeight*float64(li))
			pdf.CellFormat(r.descW-2, pdfLineHeight, string(line), "", 0, "L", false, 0, "")
		}
		x += r.descW

		pdf.SetXY(x, y)
		pdf.CellFormat(r.qtyW, rowH, fmtQty(entry.Quantity), "1", 0, "C", false, 0, "")
		x += r.qtyW
		pdf.SetXY(x, y)
		pdf.CellFormat(r.unitW, rowH, entry.Unit, "1", 0, "C", false, 0, "")
		x += r.unitW

		for _, name := range r.suppliers {
			quote, ok := service.FindSupplierData(entry.Suppliers, name, r.analysis.Quotations)

			pdf.SetXY(x, y)
			if !ok {
				pdf.CellFormat(r.rateW, rowH, "-", "1", 0, "C", false, 0, "")
				pdf.SetXY(x+r.rateW, y)
				pdf.CellFormat(r.amountW, rowH, "-", "1", 0, "C", false, 0, "")
				x += r.rateW + r.amountW
				continue
			}

			lowest := name == entry.LowestSupplier
			if lowest {
				pdf.SetFillColor(200, 235, 200)
			}
			pdf.CellFormat(r.rateW, rowH, fmtAmount(quote.UnitPrice), "1", 0, "R", false, 0, "")
			pdf.SetXY(x+r.rateW, y)
			pdf.CellFormat(r.amountW, rowH, fmtAmount(quote.Total), "1", 0, "R", lowest, 0, "")
			x += r.rateW + r.amountW
		}

		pdf.SetXY(x, y)
		pdf.CellFormat(r.lowW, rowH, entry.LowestSupplier, "1", 0, "C", false, 0, "")
		x += r.lowW
		pdf.SetXY(x, y)
		pdf.CellFormat(r.avgW, rowH, fmtAmount(entry.AverageTotal), "1", 0, "R", false, 0, "")

		pdf.SetXY(r.left, y+rowH)
	}
	pdf.Ln(4)
}

func (r *comparisonPDF) renderItemTableHeader() {
	pdf := r.pdf
	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(220, 220, 220)

	pdf.CellFormat(r.noW, pdfHeaderHeight, "#", "1", 0, "C", true, 0, "")
	pdf.CellFormat(r.descW, pdfHeaderHeight, "Item Description", "1", 0, "L", true, 0, "")
	pdf.CellFormat(r.qtyW, pdfHeaderHeight, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(r.unitW, pdfHeaderHeight, "Unit", "1", 0, "C", true, 0, "")
	for _, name := range r.suppliers {
		pdf.CellFormat(r.rateW, pdfHeaderHeight, truncateText(name, 12)+" Rate", "1", 0, "C", true, 0, "")
		pdf.CellFormat(r.amountW, pdfHeaderHeight, "Amount", "1", 0, "C", true, 0, "")
	}
	pdf.CellFormat(r.lowW, pdfHeaderHeight, "Lowest", "1", 0, "C", true, 0, "")
	pdf.CellFormat(r.avgW, pdfHeaderHeight, "Average", "1", 1, "C", true, 0, "")
}

func (r *comparisonPDF) renderPriceSummary() {
	pdf := r.pdf
	if len(r.suppliers) == 0 {
		return
	}

	r.ensureSpace(pdfHeaderHeight*float64(len(r.suppliers)+2)+10, nil)
	r.sectionTitle("Price Summary")

	lowest := r.lowestGrandTotalSupplier()

	nameW := r.usable * 0.4
	numW := (r.usable - nameW) / 3

	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(220, 220, 220)
	pdf.CellFormat(nameW, pdfHeaderHeight, "Supplier", "1", 0, "L", true, 0, "")
	pdf.CellFormat(numW, pdfHeaderHeight, "Subtotal", "1", 0, "R", true, 0, "")
	pdf.CellFormat(numW, pdfHeaderHeight, "Tax", "1", 0, "R", true, 0, "")
	pdf.CellFormat(numW, pdfHeaderHeight, "Grand Total", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 8)
	for _, name := range r.suppliers {
		terms, ok := service.FindSupplierData(r.analysis.Commercial, name, r.analysis.Quotations)
		if !ok {
			continue
		}
		fill := name == lowest
		if fill {
			pdf.SetFillColor(200, 235, 200)
		}
		pdf.CellFormat(nameW, pdfHeaderHeight, name, "1", 0, "L", fill, 0, "")
		pdf.CellFormat(numW, pdfHeaderHeight, fmtAmount(terms.Subtotal), "1", 0, "R", fill, 0, "")
		pdf.CellFormat(numW, pdfHeaderHeight, fmtAmount(terms.Tax), "1", 0, "R", fill, 0, "")
		pdf.CellFormat(numW, pdfHeaderHeight, fmtAmount(terms.Total), "1", 1, "R", fill, 0, "")
	}
	pdf.Ln(4)
}

func (r *comparisonPDF) renderRecommendation() {
	pdf := r.pdf

	r.ensureSpace(40, nil)
	r.sectionTitle("Recommendation")

	pdf.SetFont("Arial", "", 9)
	rec := r.analysis.Recommendation
	if rec == "" {
		rec = "No recommendation available."
	}
	pdf.MultiCell(r.usable, pdfLineHeight, rec, "", "L", false)
	pdf.Ln(1)

	if len(r.analysis.Ranking) > 0 {
		pdf.SetFont("Arial", "", 8)
		for _, rk := range r.analysis.Ranking {
			line := strconv.Itoa(rk.Rank) + ". " + rk.Supplier + " - " + fmtAmount(rk.GrandTotal)
			pdf.CellFormat(r.usable, pdfLineHeight, line, "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)
}

func (r *comparisonPDF) renderSignatureBlocks() {
	pdf := r.pdf

	r.ensureSpace(30, nil)

	labels := []string{"Prepared By", "Checked By", "Approved By"}
	blockW := r.usable / float64(len(labels))

	y := pdf.GetY() + 10
	pdf.SetFont("Arial", "", 9)
	for i, label := range labels {
		x := r.left + blockW*float64(i)
		pdf.Line(x+5, y+10, x+blockW-5, y+10)
		pdf.SetXY(x, y+11)
		pdf.CellFormat(blockW, 5, label, "", 0, "C", false, 0, "")
	}
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (r *comparisonPDF) sectionTitle(title string) {
	r.pdf.SetFont("Arial", "B", 10)
	r.pdf.CellFormat(r.usable, 7, title, "", 1, "L", false, 0, "")
}

func (r *comparisonPDF) supplierContact(name string) string {
	for _, q := range r.analysis.Quotations {
		if q.Supplier.Name != name {
			continue
		}
		contact := q.Supplier.ContactPerson
		if q.Supplier.Phone != "" {
			if contact != "" {
				contact += " / "
			}
			contact += q.Supplier.Phone
		}
		return contact
	}
	return ""
}

// lowestGrandTotalSupplier returns the canonical supplier with the lowest
// grand total, skipping suppliers without commercial data.
func (r *comparisonPDF) lowestGrandTotalSupplier() string {
	lowest := ""
	var lowestTotal float64
	for _, name := range r.suppliers {
		terms, ok := service.FindSupplierData(r.analysis.Commercial, name, r.analysis.Quotations)
		if !ok {
			continue
		}
		if lowest == "" || terms.Total < lowestTotal {
			lowest = name
			lowestTotal = terms.Total
		}
	}
	return lowest
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
