package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/service"
)

// utf8BOM prefixes CSV output so Excel opens UTF-8 (including Arabic supplier
// names) correctly.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ComparisonTable flattens an analysis into headers and rows for CSV/Excel.
// Supplier columns follow the canonical order; every item appears exactly once.
func ComparisonTable(a *service.ComparisonAnalysis) ([]string, [][]string) {
	suppliers := service.SupplierColumns(a)

	headers := []string{"#", "Item", "Qty", "Unit"}
	for _, s := range suppliers {
		headers = append(headers, s+" Rate", s+" Amount")
	}
	headers = append(headers, "Lowest Supplier", "Lowest Total", "Average Total")

	rows := make([][]string, 0, len(a.Items))
	for i, entry := range a.Items {
		row := []string{
			fmt.Sprintf("%d", i+1),
			entry.Item,
			fmtQty(entry.Quantity),
			entry.Unit,
		}
		for _, s := range suppliers {
			quote, ok := service.FindSupplierData(entry.Suppliers, s, a.Quotations)
			if !ok {
				row = append(row, "-", "-")
				continue
			}
			row = append(row, fmtAmount(quote.UnitPrice), fmtAmount(quote.Total))
		}
		row = append(row, entry.LowestSupplier, fmtAmount(entry.LowestTotal), fmtAmount(entry.AverageTotal))
		rows = append(rows, row)
	}
	return headers, rows
}

// WriteCSV writes a UTF-8 BOM followed by the table as CSV.
func WriteCSV(w io.Writer, headers []string, rows [][]string) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to write BOM")
	}

	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(headers); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to write CSV headers")
	}
	for _, row := range rows {
		if err := writer.Write(row); err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to write CSV row")
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX writes the table as an Excel workbook with a bold shaded header row.
func WriteXLSX(w io.Writer, sheetName string, headers []string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create sheet")
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to create header style")
	}

	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeInternal, "failed to build cell name")
		}
		f.SetCellValue(sheetName, cell, header)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, row := range rows {
		for colIdx, value := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeInternal, "failed to build cell name")
			}
			f.SetCellValue(sheetName, cell, value)
		}
	}

	if err := f.Write(w); err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to write workbook")
	}
	return nil
}

func fmtAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func fmtQty(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}
