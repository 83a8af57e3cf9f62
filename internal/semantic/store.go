package semantic

import (
	"context"
	"fmt"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"

	"quotedesk/internal"
)

// Store keeps catalog embeddings in an embedded chromem-go database, one
// collection per account. The relational products table is the source of
// truth; this is a derived index rebuilt on import.
type Store struct {
	db       *chromem.DB
	embedder Embedder
	logger   *zap.Logger
}

// Hit is one similarity-search result mapped back to a catalog product id.
type Hit struct {
	ProductID  int
	Similarity float32
}

func OpenStore(dir string, embedder Embedder, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return &Store{db: db, embedder: embedder, logger: logger}, nil
}

func collectionName(accountID int) string {
	return fmt.Sprintf("catalog-%d", accountID)
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}
}

// RebuildCatalog re-embeds an account's catalog after a bulk import.
// Individual embedding failures are logged and skipped so one bad row does
// not sink the import.
func (s *Store) RebuildCatalog(ctx context.Context, accountID int, products []internal.CatalogProduct) error {
	name := collectionName(accountID)
	_ = s.db.DeleteCollection(name)

	collection, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}

	indexed := 0
	for _, p := range products {
		doc := chromem.Document{
			ID:       strconv.Itoa(p.ID),
			Content:  p.SKU + " " + p.Name,
			Metadata: map[string]string{"sku": p.SKU},
		}
		if err := collection.AddDocument(ctx, doc); err != nil {
			s.logger.Warn("skipping product embedding",
				zap.Int("productId", p.ID),
				zap.String("sku", p.SKU),
				zap.Error(err))
			continue
		}
		indexed++
	}

	s.logger.Info("rebuilt catalog embeddings",
		zap.Int("accountId", accountID),
		zap.Int("indexed", indexed),
		zap.Int("total", len(products)))
	return nil
}

// Search embeds the query text and returns catalog hits at or above the
// similarity threshold, best first.
func (s *Store) Search(ctx context.Context, accountID int, text string, limit int, threshold float32) ([]Hit, error) {
	collection := s.db.GetCollection(collectionName(accountID), s.embeddingFunc())
	if collection == nil {
		return nil, nil
	}

	// chromem requires nResults <= document count.
	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := collection.Query(ctx, text, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	out := make([]Hit, 0, len(results))
	for _, r := range results {
		if r.Similarity < threshold {
			continue
		}
		id, err := strconv.Atoi(r.ID)
		if err != nil {
			continue
		}
		out = append(out, Hit{ProductID: id, Similarity: r.Similarity})
	}
	return out, nil
}
