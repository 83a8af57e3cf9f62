package extract

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, value := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				t.Fatal(err)
			}
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFlattenWorkbook(t *testing.T) {
	content := buildWorkbook(t, [][]any{
		{"sku", "name", "qty"},
		{"WID-100", "Widget A", 2},
		{},
		{"BLT-M8", "Bolt M8", 100},
	})

	flat, err := FlattenWorkbook(content)
	if err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"sku | name | qty", "WID-100 | Widget A | 2", "BLT-M8 | Bolt M8 | 100"} {
		if !strings.Contains(flat, want) {
			t.Fatalf("flattened output missing %q:\n%s", want, flat)
		}
	}
	if strings.Contains(flat, "| |") {
		t.Fatalf("empty row leaked into output:\n%s", flat)
	}
}

func TestFlattenWorkbookRejectsEmpty(t *testing.T) {
	content := buildWorkbook(t, nil)
	if _, err := FlattenWorkbook(content); err == nil {
		t.Fatal("expected error for workbook without data rows")
	}
}

func TestFlattenWorkbookRejectsGarbage(t *testing.T) {
	if _, err := FlattenWorkbook([]byte("not a zip")); err == nil {
		t.Fatal("expected error for non-xlsx content")
	}
}
