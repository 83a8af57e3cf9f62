// Package catalog loads product and cross-reference data from spreadsheet
// files into an account's catalog and keeps the semantic index in sync.
package catalog

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"quotedesk/internal"
	"quotedesk/internal/semantic"
	"quotedesk/internal/storage"
	"quotedesk/internal/util"
)

type Importer struct {
	db       *storage.DB
	semantic *semantic.Store
	logger   *zap.Logger
}

type ImportStats struct {
	Rows    int
	Loaded  int
	Skipped int
}

// NewImporter builds an importer. The semantic store may be nil when no
// embedding backend is configured; product imports then skip reindexing.
func NewImporter(db *storage.DB, store *semantic.Store, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{db: db, semantic: store, logger: logger}
}

// ImportProducts reads a workbook of catalog products and upserts them for
// the account. Expected columns: sku, name, price, and optionally cost,
// category, supplier. Matching is by header name, not position.
func (i *Importer) ImportProducts(ctx context.Context, accountID int, path string) (ImportStats, error) {
	rows, err := readSheet(path)
	if err != nil {
		return ImportStats{}, err
	}

	header, dataRows, err := splitHeader(rows)
	if err != nil {
		return ImportStats{}, err
	}

	stats := ImportStats{Rows: len(dataRows)}
	products := make([]internal.CatalogProduct, 0, len(dataRows))
	for n, row := range dataRows {
		p, ok := productFromRow(accountID, header, row)
		if !ok {
			i.logger.Warn("skipping catalog row without sku or name",
				zap.String("file", path),
				zap.Int("row", n+2))
			stats.Skipped++
			continue
		}
		products = append(products, p)
	}

	if len(products) == 0 {
		return stats, fmt.Errorf("no usable product rows in %s", path)
	}

	if err := i.db.UpsertProducts(products); err != nil {
		return stats, err
	}
	stats.Loaded = len(products)

	if i.semantic != nil {
		if err := i.reindex(ctx, accountID); err != nil {
			return stats, fmt.Errorf("catalog stored but reindex failed: %w", err)
		}
	}

	return stats, nil
}

// ImportCrossReferences reads a workbook mapping competitor SKUs to catalog
// SKUs. Expected columns: competitor_sku, catalog_sku.
func (i *Importer) ImportCrossReferences(accountID int, path string) (ImportStats, error) {
	rows, err := readSheet(path)
	if err != nil {
		return ImportStats{}, err
	}

	header, dataRows, err := splitHeader(rows)
	if err != nil {
		return ImportStats{}, err
	}

	stats := ImportStats{Rows: len(dataRows)}
	refs := make([]internal.CrossReference, 0, len(dataRows))
	for n, row := range dataRows {
		competitor := cell(header, row, "competitor_sku", "competitor", "their_sku")
		catalog := cell(header, row, "catalog_sku", "our_sku", "sku")
		if competitor == "" || catalog == "" {
			i.logger.Warn("skipping cross-reference row with missing sku",
				zap.String("file", path),
				zap.Int("row", n+2))
			stats.Skipped++
			continue
		}
		refs = append(refs, internal.CrossReference{
			AccountID:     accountID,
			CompetitorSKU: competitor,
			CatalogSKU:    catalog,
		})
	}

	if len(refs) == 0 {
		return stats, fmt.Errorf("no usable cross-reference rows in %s", path)
	}

	if err := i.db.UpsertCrossReferences(refs); err != nil {
		return stats, err
	}
	stats.Loaded = len(refs)
	return stats, nil
}

// Reindex rebuilds the semantic index for an account from the stored
// catalog. Called after imports and available standalone for recovery.
func (i *Importer) Reindex(ctx context.Context, accountID int) error {
	if i.semantic == nil {
		return fmt.Errorf("semantic store not configured")
	}
	return i.reindex(ctx, accountID)
}

func (i *Importer) reindex(ctx context.Context, accountID int) error {
	products, err := i.db.ListProductsByAccount(accountID)
	if err != nil {
		return err
	}
	i.logger.Info("rebuilding semantic index",
		zap.Int("accountId", accountID),
		zap.Int("products", len(products)))
	return i.semantic.RebuildCatalog(ctx, accountID, products)
}

// readSheet returns all rows of the first sheet in the workbook.
func readSheet(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wb, err := excelize.OpenReader(f)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	return wb.GetRows(sheets[0])
}

func splitHeader(rows [][]string) (map[string]int, [][]string, error) {
	if len(rows) < 2 {
		return nil, nil, fmt.Errorf("workbook needs a header row and at least one data row")
	}
	header := map[string]int{}
	for idx, name := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(name))
		key = strings.ReplaceAll(key, " ", "_")
		if key != "" {
			header[key] = idx
		}
	}
	return header, rows[1:], nil
}

func productFromRow(accountID int, header map[string]int, row []string) (internal.CatalogProduct, bool) {
	sku := cell(header, row, "sku", "item_number", "part_number")
	name := cell(header, row, "name", "description", "item_name")
	if sku == "" || name == "" {
		return internal.CatalogProduct{}, false
	}

	p := internal.CatalogProduct{
		AccountID: accountID,
		SKU:       sku,
		Name:      name,
	}
	if v := util.ParseNumber(cell(header, row, "price", "unit_price", "list_price")); v != nil {
		p.Price = *v
	}
	if v := util.ParseNumber(cell(header, row, "cost")); v != nil {
		p.Cost = v
	}
	if v := cell(header, row, "category"); v != "" {
		p.Category = util.StringPtr(v)
	}
	if v := cell(header, row, "supplier", "vendor"); v != "" {
		p.Supplier = util.StringPtr(v)
	}
	return p, true
}

// cell reads the first non-empty value among the aliased columns.
func cell(header map[string]int, row []string, names ...string) string {
	for _, name := range names {
		idx, ok := header[name]
		if !ok || idx >= len(row) {
			continue
		}
		if value := strings.TrimSpace(row[idx]); value != "" {
			return value
		}
	}
	return ""
}
