package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FlattenWorkbook renders a spreadsheet as a flat textual table, one row
// per line with cells joined by " | ". The extraction service only
// understands text, PDF bytes or image bytes, never raw spreadsheet binary.
func FlattenWorkbook(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var sb strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("# " + sheet + "\n")
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			empty := true
			for _, cell := range row {
				trimmed := strings.TrimSpace(cell)
				if trimmed != "" {
					empty = false
				}
				cells = append(cells, trimmed)
			}
			if empty {
				continue
			}
			sb.WriteString(strings.Join(cells, " | "))
			sb.WriteString("\n")
		}
	}

	flat := strings.TrimSpace(sb.String())
	if flat == "" {
		return "", fmt.Errorf("workbook has no non-empty rows")
	}
	return flat, nil
}
