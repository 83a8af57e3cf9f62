package match

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"quotedesk/internal"
	"quotedesk/internal/config"
	"quotedesk/internal/semantic"
	"quotedesk/internal/storage"
	"quotedesk/internal/util"
)

const searchLimit = 25

// SemanticSearcher is the embedding-similarity boundary. A nil searcher
// disables the semantic stage; its failures degrade the result set instead
// of aborting a request.
type SemanticSearcher interface {
	Search(ctx context.Context, accountID int, text string, limit int, threshold float32) ([]semantic.Hit, error)
}

// Query is one line item to match within an account's catalog scope.
type Query struct {
	AccountID   int
	SKU         string
	Description string
}

type Engine struct {
	db       *storage.DB
	semantic SemanticSearcher
	cfg      config.Config
	logger   *zap.Logger
}

func NewEngine(db *storage.DB, searcher SemanticSearcher, cfg config.Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{db: db, semantic: searcher, cfg: cfg, logger: logger}
}

// Match runs the matching stages in order (competitor cross-reference,
// direct SKU search, description overlap, semantic fallback) and returns up
// to cfg.MatchTopN candidates sorted by score descending. The sort is stable
// so ties keep discovery order, which favors the cheaper lexical stages.
func (e *Engine) Match(ctx context.Context, q Query) ([]internal.CandidateMatch, error) {
	found := newCollector()
	sku := strings.TrimSpace(q.SKU)
	description := strings.TrimSpace(q.Description)

	if len(sku) > 2 {
		if err := e.crossReferenceStage(q.AccountID, sku, found); err != nil {
			return nil, err
		}
	}
	if sku != "" {
		if err := e.skuStage(q.AccountID, sku, found); err != nil {
			return nil, err
		}
	}
	if description != "" {
		if err := e.descriptionStage(q.AccountID, description, found); err != nil {
			return nil, err
		}
		// Embedding lookups cost money; only pay when the lexical stages
		// came up short.
		if found.best() < 0.8 {
			e.semanticStage(ctx, q.AccountID, description, found)
		}
	}

	candidates := found.list()
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	topN := e.cfg.MatchTopN
	if topN <= 0 {
		topN = 5
	}
	if len(candidates) > topN {
		candidates = candidates[:topN]
	}
	return candidates, nil
}

// crossReferenceStage resolves a known competitor SKU to the mapped catalog
// product with a fixed high score. Additive: later stages never lower it.
func (e *Engine) crossReferenceStage(accountID int, sku string, found *collector) error {
	ref, err := e.db.GetCrossReference(accountID, sku)
	if err != nil {
		return err
	}
	if ref == nil {
		return nil
	}
	product, err := e.db.GetProductBySKU(accountID, ref.CatalogSKU)
	if err != nil {
		return err
	}
	if product == nil {
		// Stale mapping; the import that removed the product kept the xref.
		e.logger.Warn("cross-reference points at missing product",
			zap.Int("accountId", accountID),
			zap.String("competitorSku", sku),
			zap.String("catalogSku", ref.CatalogSKU))
		return nil
	}
	found.add(*product, 0.95, internal.MatchCompetitorXref)
	return nil
}

func (e *Engine) skuStage(accountID int, sku string, found *collector) error {
	products, err := e.db.SearchProductsBySKU(accountID, sku, searchLimit)
	if err != nil {
		return err
	}
	for _, p := range products {
		if found.seen(p.ID) {
			continue
		}
		switch {
		case strings.EqualFold(p.SKU, sku):
			found.add(p, 1.0, internal.MatchSKUExact)
		case strings.Contains(strings.ToLower(p.SKU), strings.ToLower(sku)):
			found.add(p, 0.8, internal.MatchSKUPartial)
		default:
			found.add(p, 0.5, internal.MatchFuzzy)
		}
	}
	return nil
}

func (e *Engine) descriptionStage(accountID int, description string, found *collector) error {
	tokens := descriptionTokens(description)
	if len(tokens) == 0 {
		return nil
	}
	products, err := e.db.SearchProductsByName(accountID, tokens, searchLimit)
	if err != nil {
		return err
	}
	for _, p := range products {
		if found.seen(p.ID) {
			continue
		}
		if util.ContainsFold(p.Name, description) {
			found.add(p, 0.6, internal.MatchNameOverlap)
		} else {
			found.add(p, 0.4, internal.MatchFuzzy)
		}
	}
	return nil
}

// semanticStage catches synonym and paraphrase cases the lexical stages
// miss. Failures are logged and the request continues with whatever the
// earlier stages found.
func (e *Engine) semanticStage(ctx context.Context, accountID int, description string, found *collector) {
	if e.semantic == nil {
		return
	}
	hits, err := e.semantic.Search(ctx, accountID, description, e.cfg.SemanticLimit, float32(e.cfg.SemanticThreshold))
	if err != nil {
		e.logger.Warn("semantic search failed, degrading to lexical results", zap.Error(err))
		return
	}
	for _, hit := range hits {
		if found.seen(hit.ProductID) {
			continue
		}
		product, err := e.db.GetProductByID(hit.ProductID)
		if err != nil || product == nil {
			continue
		}
		found.add(*product, float64(hit.Similarity), internal.MatchSemantic)
	}
}

// descriptionTokens picks the first three tokens longer than two characters.
func descriptionTokens(description string) []string {
	out := make([]string, 0, 3)
	for _, token := range util.Tokenize(description) {
		if len([]rune(token)) <= 2 {
			continue
		}
		out = append(out, token)
		if len(out) == 3 {
			break
		}
	}
	return out
}

// collector accumulates candidates in discovery order, deduplicated by
// catalog product id. Later stages never displace an earlier hit.
type collector struct {
	order []int
	byID  map[int]internal.CandidateMatch
}

func newCollector() *collector {
	return &collector{byID: map[int]internal.CandidateMatch{}}
}

func (c *collector) seen(productID int) bool {
	_, ok := c.byID[productID]
	return ok
}

func (c *collector) add(p internal.CatalogProduct, score float64, kind internal.MatchKind) {
	if c.seen(p.ID) {
		return
	}
	c.byID[p.ID] = internal.CandidateMatch{Product: p, Score: score, Kind: kind}
	c.order = append(c.order, p.ID)
}

func (c *collector) best() float64 {
	best := 0.0
	for _, candidate := range c.byID {
		if candidate.Score > best {
			best = candidate.Score
		}
	}
	return best
}

func (c *collector) list() []internal.CandidateMatch {
	out := make([]internal.CandidateMatch, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}
