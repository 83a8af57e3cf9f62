package quote

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"quotedesk/internal"
)

// ExportQuoteXLSX writes a quote and its line items to a spreadsheet for
// human review, with match provenance columns when a candidate was applied.
func ExportQuoteXLSX(q internal.QuoteRow, items []internal.QuoteLineItem, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"line_no", "description", "sku", "quantity", "unit_price", "total_price",
		"confidence", "match_kind", "match_score", "matched_sku",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, item := range items {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, i+1)
		set(2, item.Description)
		set(3, derefString(item.SKU))
		set(4, item.Quantity)
		set(5, item.UnitPrice)
		set(6, item.TotalPrice)
		set(7, metaValue(item.Meta, "confidence"))

		if match, ok := item.Meta["match"].(map[string]any); ok {
			set(8, match["kind"])
			set(9, match["score"])
			set(10, match["sku"])
		}
	}

	summaryRow := len(items) + 3
	for col, value := range []any{"quote_number", q.QuoteNumber, "status", string(q.Status), "total_amount", q.TotalAmount} {
		cell, _ := excelize.CoordinatesToCellName(col+1, summaryRow)
		_ = f.SetCellValue(sheet, cell, value)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func metaValue(meta map[string]any, key string) any {
	if meta == nil {
		return ""
	}
	if v, ok := meta[key]; ok {
		return v
	}
	return ""
}
