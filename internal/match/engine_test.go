package match

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"

	"quotedesk/internal"
	"quotedesk/internal/config"
	"quotedesk/internal/semantic"
	"quotedesk/internal/storage"
)

type fakeSearcher struct {
	hits   []semantic.Hit
	called int
}

func (f *fakeSearcher) Search(ctx context.Context, accountID int, text string, limit int, threshold float32) ([]semantic.Hit, error) {
	f.called++
	return f.hits, nil
}

func setupEngine(t *testing.T, searcher SemanticSearcher) (*Engine, *storage.DB, int) {
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

	products := []internal.CatalogProduct{
		{AccountID: account.ID, SKU: "WID-100", Name: "Industrial Widget Type A", Price: 10},
		{AccountID: account.ID, SKU: "WID-100-XL", Name: "Industrial Widget Type A XL", Price: 14},
		{AccountID: account.ID, SKU: "BLT-M8", Name: "Stainless Bolt M8", Price: 0.4},
		{AccountID: account.ID, SKU: "GSK-12", Name: "Rubber Gasket 12mm", Price: 1.2},
	}
	if err := db.UpsertProducts(products); err != nil {
		t.Fatal(err)
	}

	cfg, _ := config.Load()
	return NewEngine(db, searcher, cfg, nil), db, account.ID
}

func productID(t *testing.T, db *storage.DB, accountID int, sku string) int {
	t.Helper()
	p, err := db.GetProductBySKU(accountID, sku)
	if err != nil || p == nil {
		t.Fatalf("fixture product %s missing: %v", sku, err)
	}
	return p.ID
}

func TestMatchExactSKU(t *testing.T) {
	engine, _, accountID := setupEngine(t, nil)

	candidates, err := engine.Match(context.Background(), Query{AccountID: accountID, SKU: "wid-100"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates")
	}
	top := candidates[0]
	if top.Product.SKU != "WID-100" || top.Score != 1.0 || top.Kind != internal.MatchSKUExact {
		t.Fatalf("unexpected top candidate: %+v", top)
	}

	// The longer SKU containing the query ranks below the exact hit.
	if len(candidates) < 2 || candidates[1].Kind != internal.MatchSKUPartial {
		t.Fatalf("expected a partial candidate second: %+v", candidates)
	}
}

func TestMatchExactSKUWithUnderscore(t *testing.T) {
	engine, db, accountID := setupEngine(t, nil)

	err := db.UpsertProducts([]internal.CatalogProduct{
		{AccountID: accountID, SKU: "AB_100", Name: "Anchor Bracket 100", Price: 3},
	})
	if err != nil {
		t.Fatal(err)
	}

	candidates, err := engine.Match(context.Background(), Query{AccountID: accountID, SKU: "AB_100"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates for an underscore sku")
	}
	top := candidates[0]
	if top.Product.SKU != "AB_100" || top.Score != 1.0 || top.Kind != internal.MatchSKUExact {
		t.Fatalf("unexpected top candidate: %+v", top)
	}
}

func TestMatchCompetitorCrossReferenceWinsExceptExact(t *testing.T) {
	engine, db, accountID := setupEngine(t, nil)
	err := db.UpsertCrossReferences([]internal.CrossReference{
		{AccountID: accountID, CompetitorSKU: "CMP-777", CatalogSKU: "BLT-M8"},
	})
	if err != nil {
		t.Fatal(err)
	}

	candidates, err := engine.Match(context.Background(), Query{AccountID: accountID, SKU: "CMP-777"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected only the mapped product, got %+v", candidates)
	}
	if candidates[0].Kind != internal.MatchCompetitorXref || candidates[0].Score != 0.95 {
		t.Fatalf("unexpected candidate: %+v", candidates[0])
	}
}

func TestMatchDescriptionOverlap(t *testing.T) {
	engine, _, accountID := setupEngine(t, nil)

	candidates, err := engine.Match(context.Background(), Query{AccountID: accountID, Description: "rubber gasket 12mm"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) == 0 {
		t.Fatal("no candidates")
	}
	if candidates[0].Product.SKU != "GSK-12" || candidates[0].Kind != internal.MatchNameOverlap {
		t.Fatalf("unexpected top candidate: %+v", candidates[0])
	}
}

func TestSemanticStageRunsOnlyWhenLexicalIsWeak(t *testing.T) {
	searcher := &fakeSearcher{}
	engine, _, accountID := setupEngine(t, searcher)

	// Exact SKU hit scores 1.0, so the semantic stage must not fire.
	if _, err := engine.Match(context.Background(), Query{AccountID: accountID, SKU: "WID-100", Description: "industrial widget"}); err != nil {
		t.Fatal(err)
	}
	if searcher.called != 0 {
		t.Fatalf("semantic stage fired despite a strong lexical match")
	}

	// No lexical hits at all: semantic becomes the fallback.
	if _, err := engine.Match(context.Background(), Query{AccountID: accountID, Description: "hexagonal fastener"}); err != nil {
		t.Fatal(err)
	}
	if searcher.called != 1 {
		t.Fatalf("semantic stage did not fire for weak lexical results, called=%d", searcher.called)
	}
}

func TestSemanticHitsJoinCandidates(t *testing.T) {
	searcher := &fakeSearcher{}
	engine, db, accountID := setupEngine(t, searcher)
	searcher.hits = []semantic.Hit{
		{ProductID: productID(t, db, accountID, "BLT-M8"), Similarity: 0.75},
	}

	candidates, err := engine.Match(context.Background(), Query{AccountID: accountID, Description: "hexagonal fastener"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected one semantic candidate, got %+v", candidates)
	}
	got := candidates[0]
	if got.Kind != internal.MatchSemantic || got.Score != 0.75 {
		t.Fatalf("unexpected candidate: %+v", got)
	}
}

func TestMatchDeduplicatesAcrossStages(t *testing.T) {
	engine, db, accountID := setupEngine(t, nil)
	err := db.UpsertCrossReferences([]internal.CrossReference{
		{AccountID: accountID, CompetitorSKU: "WID-100", CatalogSKU: "WID-100"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// WID-100 resolves both through the xref and the direct SKU stage; the
	// product must appear once, with the first stage's verdict.
	candidates, err := engine.Match(context.Background(), Query{AccountID: accountID, SKU: "WID-100"})
	if err != nil {
		t.Fatal(err)
	}
	seen := map[int]int{}
	for _, c := range candidates {
		seen[c.Product.ID]++
	}
	for id, n := range seen {
		if n > 1 {
			t.Fatalf("product %d appears %d times", id, n)
		}
	}
	if candidates[0].Kind != internal.MatchCompetitorXref {
		t.Fatalf("first stage verdict lost: %+v", candidates[0])
	}
}

func TestMatchTruncatesToTopN(t *testing.T) {
	engine, db, accountID := setupEngine(t, nil)

	bulk := make([]internal.CatalogProduct, 0, 10)
	for i := 0; i < 10; i++ {
		bulk = append(bulk, internal.CatalogProduct{
			AccountID: accountID,
			SKU:       "FIT-" + strconv.Itoa(i),
			Name:      "Brass Fitting Size " + strconv.Itoa(i),
			Price:     1,
		})
	}
	if err := db.UpsertProducts(bulk); err != nil {
		t.Fatal(err)
	}

	candidates, err := engine.Match(context.Background(), Query{AccountID: accountID, SKU: "FIT"})
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) > 5 {
		t.Fatalf("result not truncated: %d candidates", len(candidates))
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Score > candidates[i-1].Score {
			t.Fatalf("candidates not sorted by score: %+v", candidates)
		}
	}
}
