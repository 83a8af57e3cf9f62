package quote

import (
	"path/filepath"
	"testing"
	"time"

	"quotedesk/internal"
	"quotedesk/internal/storage"
	"quotedesk/internal/util"
)

func setupAssembler(t *testing.T) (*Assembler, *storage.DB, int) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	account, err := db.UpsertAccount("buyer@acme.example", "", true, 10)
	if err != nil {
		t.Fatal(err)
	}
	return NewAssembler(db, nil), db, account.ID
}

func TestAssembleDraftTotals(t *testing.T) {
	assembler, db, accountID := setupAssembler(t)

	items := []internal.ExtractedLineItem{
		{
			Name:      util.StringPtr("Widget A"),
			SKU:       util.StringPtr("WID-100"),
			Quantity:  util.FloatPtr(2),
			UnitPrice: util.FloatPtr(10),
		},
		{
			// Explicit total wins over quantity times unit price.
			Name:       util.StringPtr("Bolt pack"),
			Quantity:   util.FloatPtr(3),
			UnitPrice:  util.FloatPtr(5),
			TotalPrice: util.FloatPtr(12),
		},
		{
			// No quantity counts as one, no price as zero.
			Description: util.StringPtr("Mystery part"),
		},
	}

	row, err := assembler.AssembleDraft(accountID, nil, "<m1@acme>", items)
	if err != nil {
		t.Fatal(err)
	}
	if row.Status != internal.QuoteDraft {
		t.Fatalf("status = %s", row.Status)
	}
	if row.TotalAmount != 32 {
		t.Fatalf("total = %v, want 32", row.TotalAmount)
	}

	lines, err := db.ListQuoteLineItems(row.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 {
		t.Fatalf("stored %d lines", len(lines))
	}
	if lines[0].TotalPrice != 20 {
		t.Fatalf("line 1 total = %v, want 20", lines[0].TotalPrice)
	}
	if lines[1].TotalPrice != 12 {
		t.Fatalf("line 2 total = %v, want 12", lines[1].TotalPrice)
	}
	if lines[2].Quantity != 1 || lines[2].TotalPrice != 0 {
		t.Fatalf("line 3 fallbacks wrong: %+v", lines[2])
	}
	if lines[2].Description != "Mystery part" {
		t.Fatalf("description fallback wrong: %q", lines[2].Description)
	}
}

func TestAssembleDraftRejectsEmptyBatch(t *testing.T) {
	assembler, _, accountID := setupAssembler(t)
	if _, err := assembler.AssembleDraft(accountID, nil, "", nil); err == nil {
		t.Fatal("expected error for zero line items")
	}
}

func TestAssembleDraftKeepsExtractionMeta(t *testing.T) {
	assembler, db, accountID := setupAssembler(t)

	items := []internal.ExtractedLineItem{{
		Name:       util.StringPtr("Widget A"),
		Confidence: 0.5,
		Meta:       map[string]any{"item_name": "Widget A", "page": "2"},
	}}
	row, err := assembler.AssembleDraft(accountID, nil, "", items)
	if err != nil {
		t.Fatal(err)
	}

	lines, err := db.ListQuoteLineItems(row.ID)
	if err != nil {
		t.Fatal(err)
	}
	if lines[0].Meta["confidence"] != 0.5 {
		t.Fatalf("confidence lost: %+v", lines[0].Meta)
	}
	extraction, ok := lines[0].Meta["extraction"].(map[string]any)
	if !ok || extraction["page"] != "2" {
		t.Fatalf("raw extraction payload lost: %+v", lines[0].Meta)
	}
}

func TestQuoteNumber(t *testing.T) {
	at := time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)

	if got := QuoteNumber(at, ""); got != "Q-20260830-140500" {
		t.Fatalf("timestamp-only number = %q", got)
	}
	if got := QuoteNumber(at, "<abc-123@mail.example>"); got != "Q-20260830-140500-ABC123MA" {
		t.Fatalf("number with message prefix = %q", got)
	}
}
