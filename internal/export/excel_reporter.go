// Package export renders combined reconciliation results as Excel workbooks
// for accountants who review discrepancies outside the API.
package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/bill-reconciler/internal/summary"
)

const (
	billsSheet = "Bills"
	itemsSheet = "Line Items"
)

// ExcelReporter writes reconciliation reports as .xlsx workbooks.
type ExcelReporter struct {
	logger *zap.Logger
}

// NewExcelReporter creates a new Excel reporter
func NewExcelReporter(logger *zap.Logger) *ExcelReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExcelReporter{logger: logger}
}

// WriteReport writes a combined result to outputPath: one sheet with a row
// per bill plus combined totals, one sheet with every line item.
func (r *ExcelReporter) WriteReport(result summary.CombinedResult, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), billsSheet); err != nil {
		return fmt.Errorf("failed to set sheet name: %w", err)
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	r.fillBillsSheet(f, result)
	r.fillItemsSheet(f, result)

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	r.logger.Info("Excel report written",
		zap.String("path", outputPath),
		zap.Int("bill_count", result.BillCount))
	return nil
}

func (r *ExcelReporter) fillBillsSheet(f *excelize.File, result summary.CombinedResult) {
	headers := []string{"Bill ID", "Vendor", "Date", "Currency", "Computed Total",
		"Stated Total", "Discrepancy", "Consistent", "Sub-total Mismatches", "Overlap Warnings"}
	for i, header := range headers {
		r.setCell(f, billsSheet, cellRef(i, 1), header)
	}

	row := 2
	for _, s := range result.Summaries {
		stated, discrepancy := "", ""
		if s.Report.StatedTotal != nil {
			stated = s.Report.StatedTotal.StringFixed(2)
		}
		if s.Report.Discrepancy != nil {
			discrepancy = s.Report.Discrepancy.StringFixed(2)
		}

		values := []any{
			s.BillID, s.VendorName, s.Date, s.Currency,
			s.Report.ComputedTotal.StringFixed(2), stated, discrepancy,
			s.Report.IsConsistent,
			len(s.Report.SubtotalMismatches), len(s.Report.Overlaps),
		}
		for i, value := range values {
			r.setCell(f, billsSheet, cellRef(i, row), value)
		}
		row++
	}

	row++
	r.setCell(f, billsSheet, cellRef(0, row), "Combined Total")
	r.setCell(f, billsSheet, cellRef(4, row), result.CombinedTotal.StringFixed(2))
	row++
	r.setCell(f, billsSheet, cellRef(0, row), "Combined Stated Total")
	r.setCell(f, billsSheet, cellRef(5, row), result.CombinedStatedTotal.StringFixed(2))
	if len(result.InconsistentBillIDs) > 0 {
		row++
		r.setCell(f, billsSheet, cellRef(0, row), "Inconsistent Bills")
		r.setCell(f, billsSheet, cellRef(1, row), strings.Join(result.InconsistentBillIDs, ", "))
	}
	if len(result.UnverifiableBillIDs) > 0 {
		row++
		r.setCell(f, billsSheet, cellRef(0, row), "Unverifiable Bills")
		r.setCell(f, billsSheet, cellRef(1, row), strings.Join(result.UnverifiableBillIDs, ", "))
	}
}

func (r *ExcelReporter) fillItemsSheet(f *excelize.File, result summary.CombinedResult) {
	headers := []string{"Bill ID", "#", "Description", "Quantity", "Unit Price", "Amount", "Category"}
	for i, header := range headers {
		r.setCell(f, itemsSheet, cellRef(i, 1), header)
	}

	row := 2
	for _, s := range result.Summaries {
		for _, item := range s.LineItems {
			values := []any{
				s.BillID, item.Index, item.Description,
				item.Quantity, item.UnitPrice, item.Amount, item.Category,
			}
			for i, value := range values {
				r.setCell(f, itemsSheet, cellRef(i, row), value)
			}
			row++
		}
	}
}

func (r *ExcelReporter) setCell(f *excelize.File, sheet, cell string, value any) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		r.logger.Warn("Failed to set cell",
			zap.String("sheet", sheet), zap.String("cell", cell), zap.Error(err))
	}
}

// cellRef converts a zero-based column and one-based row to an A1 reference.
func cellRef(col, row int) string {
	name, _ := excelize.ColumnNumberToName(col + 1)
	return fmt.Sprintf("%s%d", name, row)
}
