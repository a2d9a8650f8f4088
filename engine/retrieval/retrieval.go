// Package retrieval embeds questions, searches a document's collection and
// resolves imprecise structural references against stored unit titles.
package retrieval

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/semantic"
)

// Embedder turns text into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the read side of the vector store.
type VectorSearcher interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	Search(ctx context.Context, collection string, embedding []float32, limit int, filters map[string]string) ([]semantic.SearchResult, error)
	Scroll(ctx context.Context, collection string, filters map[string]string, limit int) ([]semantic.SearchResult, error)
}

// DocumentFinder looks up document records. A missing document is reported
// as a domain.NotFoundError.
type DocumentFinder interface {
	FindDocumentByID(ctx context.Context, id string) (domain.Document, error)
}

// Config tunes retrieval.
type Config struct {
	Limit         int           // default hits per query
	Threshold     float32       // minimum similarity for grounded answers
	ScanLimit     int           // points scanned when collecting stored titles
	FetchLimit    int           // points fetched for a whole unit
	SearchTimeout time.Duration // per vector-store call
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Limit:         4,
		Threshold:     0.7,
		ScanLimit:     500,
		FetchLimit:    2000,
		SearchTimeout: 10 * time.Second,
	}
}

// Hit is a retrieved chunk with its similarity score.
type Hit struct {
	domain.Chunk
	Score float32 `json:"score"`
}

// Engine performs retrieval. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	embedder Embedder
	store    VectorSearcher
	docs     DocumentFinder
	cfg      Config
	logger   *slog.Logger
}

// New creates a retrieval Engine.
func New(embedder Embedder, store VectorSearcher, docs DocumentFinder, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.ScanLimit <= 0 {
		cfg.ScanLimit = def.ScanLimit
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = def.FetchLimit
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
	return &Engine{embedder: embedder, store: store, docs: docs, cfg: cfg, logger: logger}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Open looks up a document and checks its collection exists.
func (e *Engine) Open(ctx context.Context, docID string) (domain.Document, string, error) {
	if err := domain.ValidateDocumentID(docID); err != nil {
		return domain.Document{}, "", err
	}
	doc, err := e.docs.FindDocumentByID(ctx, docID)
	if err != nil {
		return domain.Document{}, "", err
	}
	coll := semantic.CollectionName(doc)

	sctx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()
	ok, err := e.store.CollectionExists(sctx, coll)
	if err != nil {
		return doc, coll, err
	}
	if !ok {
		return doc, coll, domain.NewNotFound("collection", coll)
	}
	return doc, coll, nil
}

// Retrieve embeds question once and searches the document's collection.
// Filters are ANDed with document-id equality. When the question names a unit
// or sub-chapter and no unit filter was given, the reference is resolved
// against stored titles and added as a filter; a failed resolution only drops
// that filter. Hits are ordered by descending score.
func (e *Engine) Retrieve(ctx context.Context, docID, question string, limit int, filters map[string]string) ([]Hit, error) {
	if err := domain.ValidateQuestion(question); err != nil {
		return nil, err
	}
	doc, coll, err := e.Open(ctx, docID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = e.cfg.Limit
	}

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, domain.Upstream("embedding", "embed question", err)
	}

	must := map[string]string{semantic.KeyDocID: doc.ID}
	for k, v := range filters {
		must[k] = v
	}
	if _, has := filters[semantic.KeyUnitNorm]; !has {
		if ref, ok := DetectUnitRef(question); ok {
			if m, err := e.Resolve(ctx, coll, doc.ID, ref); err == nil {
				must[m.Key] = m.Title
			} else {
				e.logger.Debug("unit reference unresolved", "doc_id", doc.ID, "ref", ref, "err", err)
			}
		}
	}

	sctx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()
	results, err := e.store.Search(sctx, coll, vec, limit, must)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Chunk: r.Chunk, Score: r.Score}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int { return cmp.Compare(b.Score, a.Score) })

	e.logger.Debug("retrieved", "doc_id", doc.ID, "collection", coll, "hits", len(hits))
	return hits, nil
}

// Gate keeps hits scoring at or above threshold, preserving order.
func Gate(hits []Hit, threshold float32) []Hit {
	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		if h.Score >= threshold {
			out = append(out, h)
		}
	}
	return out
}
