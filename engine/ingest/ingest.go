// Package ingest turns a stored document into indexed vector points: load
// the extracted text, chunk it along the document's structure, embed the
// chunks in ordered batches and write them to the document's collection.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/semantic"
	"github.com/WessleyAI/wessley-tutor/pkg/fn"
	"github.com/WessleyAI/wessley-tutor/pkg/metrics"
	"github.com/WessleyAI/wessley-tutor/pkg/resilience"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the write side of the vector store.
type VectorStore interface {
	EnsureCollection(ctx context.Context, name string, dims int) (bool, error)
	DeleteByDocID(ctx context.Context, collection, docID string) error
	Upsert(ctx context.Context, collection string, records []semantic.VectorRecord) error
}

// Library reads document records and flags runs.
type Library interface {
	FindDocumentByID(ctx context.Context, id string) (domain.Document, error)
	MarkIndexed(ctx context.Context, id string, info domain.IndexInfo) error
	ClearIndexed(ctx context.Context, id string) error
}

// Loader returns the extracted text of a document.
type Loader interface {
	Load(ctx context.Context, doc domain.Document) (string, error)
}

// Chunker splits extracted text into chunks.
type Chunker interface {
	Chunk(doc domain.Document, raw string) ([]domain.Chunk, error)
}

// Config tunes batching, concurrency and retries.
type Config struct {
	BatchSize        int
	Workers          int
	EmbedRPS         float64
	ClearBeforeWrite bool
	Retry            fn.RetryOpts
}

func DefaultConfig() Config {
	return Config{
		BatchSize:        10,
		Workers:          4,
		ClearBeforeWrite: true,
		Retry:            fn.DefaultRetry,
	}
}

// Pipeline ingests documents one at a time. It is safe for concurrent use;
// concurrent runs of the same document race on its points.
type Pipeline struct {
	docs    Library
	loader  Loader
	chunker Chunker
	emb     Embedder
	store   VectorStore
	cfg     Config
	limiter *resilience.Limiter
	metrics *metrics.Tutor
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics records finished runs.
func WithMetrics(m *metrics.Tutor) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func New(docs Library, loader Loader, chunker Chunker, emb Embedder, store VectorStore, cfg Config, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	p := &Pipeline{
		docs:    docs,
		loader:  loader,
		chunker: chunker,
		emb:     emb,
		store:   store,
		cfg:     cfg,
		limiter: resilience.NewLimiter(resilience.LimiterOpts{Rate: cfg.EmbedRPS, Burst: cfg.Workers}),
		logger:  logger,
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Ingest indexes one document. The document is flagged as indexed only after
// every batch has been written; a failure at any step leaves the flag unset
// so the run can be repeated as a whole.
func (p *Pipeline) Ingest(ctx context.Context, docID string) (Report, error) {
	start := p.now()
	if err := domain.ValidateDocumentID(docID); err != nil {
		return Report{}, err
	}
	log := p.logger.With("doc_id", docID)

	prep, err := p.prepare()(ctx, docID).Unwrap()
	if err != nil {
		return Report{}, err
	}
	doc := prep.doc

	batches := fn.Chunk(prep.chunks, p.cfg.BatchSize)
	rep := Report{
		DocID:      doc.ID,
		Collection: semantic.CollectionName(doc),
		Chunks:     len(prep.chunks),
		Batches:    len(batches),
	}
	log = log.With("collection", rep.Collection)
	log.Info("ingesting", "chunks", rep.Chunks, "batches", rep.Batches)

	dims := 0
	for i, batch := range batches {
		vecs, err := p.embedBatch(ctx, batch)
		if err != nil {
			return Report{}, fmt.Errorf("ingest: batch %d/%d: %w", i+1, len(batches), err)
		}
		if i == 0 {
			dims = len(vecs[0])
			if err := p.openCollection(ctx, &rep, doc.Indexed, dims); err != nil {
				return Report{}, err
			}
		}

		records := make([]semantic.VectorRecord, len(batch))
		for j, c := range batch {
			if len(vecs[j]) != dims {
				return Report{}, fmt.Errorf("ingest: chunk %s#%d: embedding has %d dimensions, collection has %d: %w",
					c.Unit, c.Index, len(vecs[j]), dims, domain.ErrUpstreamUnavailable)
			}
			records[j] = semantic.RecordFromChunk(c, vecs[j])
		}
		if err := p.upsert(ctx, rep.Collection, records); err != nil {
			return Report{}, fmt.Errorf("ingest: batch %d/%d: %w", i+1, len(batches), err)
		}
		rep.Points += len(records)
		log.Info("batch stored", "batch", i+1, "of", len(batches), "points", len(records))
	}

	info := domain.IndexInfo{Collection: rep.Collection, Points: rep.Points, At: p.now().UTC()}
	if err := p.docs.MarkIndexed(ctx, doc.ID, info); err != nil {
		return Report{}, fmt.Errorf("ingest: %w", err)
	}

	rep.Duration = p.now().Sub(start)
	if p.metrics != nil {
		p.metrics.Ingested(rep.Chunks, rep.Points, rep.Duration)
	}
	log.Info("ingested", "points", rep.Points, "created", rep.Created, "took", rep.Duration)
	return rep, nil
}

// prepare loads and chunks a document.
func (p *Pipeline) prepare() fn.Stage[string, prepared] {
	find := fn.TracedStage("ingest.find", func(ctx context.Context, id string) fn.Result[domain.Document] {
		return fn.FromPair(p.docs.FindDocumentByID(ctx, id))
	})
	load := fn.TracedStage("ingest.load", func(ctx context.Context, doc domain.Document) fn.Result[loaded] {
		text, err := p.loader.Load(ctx, doc)
		if err != nil {
			return fn.Err[loaded](err)
		}
		return fn.Ok(loaded{doc: doc, text: text})
	})
	split := fn.TracedStage("ingest.chunk", func(_ context.Context, l loaded) fn.Result[prepared] {
		chunks, err := p.chunker.Chunk(l.doc, l.text)
		if err != nil {
			return fn.Err[prepared](fmt.Errorf("ingest: chunk %s: %w", l.doc.ID, err))
		}
		if len(chunks) == 0 {
			return fn.Err[prepared](domain.NewValidationError("document", l.doc.ID, domain.ErrNoExtractableText))
		}
		return fn.Ok(prepared{doc: l.doc, chunks: chunks})
	})
	return fn.Then(fn.Then(find, load), split)
}

// openCollection creates the collection on first use and clears earlier
// points of the document from an existing one. A previously indexed document
// loses its flag before any point is touched.
func (p *Pipeline) openCollection(ctx context.Context, rep *Report, indexed bool, dims int) error {
	created, err := p.store.EnsureCollection(ctx, rep.Collection, dims)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	rep.Created = created
	if indexed {
		if err := p.docs.ClearIndexed(ctx, rep.DocID); err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
	}
	if !created && p.cfg.ClearBeforeWrite {
		if err := p.store.DeleteByDocID(ctx, rep.Collection, rep.DocID); err != nil {
			return fmt.Errorf("ingest: clear previous points: %w", err)
		}
		p.logger.Info("cleared previous points", "doc_id", rep.DocID, "collection", rep.Collection)
	}
	return nil
}

// embedBatch embeds a batch concurrently, retrying the whole batch on
// upstream failures.
func (p *Pipeline) embedBatch(ctx context.Context, batch []domain.Chunk) ([][]float32, error) {
	embed := resilience.LimiterStageWait(p.limiter, func(ctx context.Context, text string) fn.Result[[]float32] {
		vec, err := p.emb.Embed(ctx, text)
		if err != nil {
			return fn.Err[[]float32](domain.Upstream("embedding", "embed chunk", err))
		}
		if len(vec) == 0 {
			return fn.Err[[]float32](domain.Upstream("embedding", "embed chunk", errors.New("empty vector")))
		}
		return fn.Ok(vec)
	})
	return fn.Retry(ctx, p.retryOpts(ctx, "embed"), func(ctx context.Context) fn.Result[[][]float32] {
		results := fn.ParMapResult(ctx, batch, p.cfg.Workers, func(ctx context.Context, _ int, c domain.Chunk) fn.Result[[]float32] {
			return embed(ctx, c.Text)
		})
		return fn.Collect(results)
	}).Unwrap()
}

func (p *Pipeline) upsert(ctx context.Context, coll string, records []semantic.VectorRecord) error {
	_, err := fn.Retry(ctx, p.retryOpts(ctx, "upsert"), func(ctx context.Context) fn.Result[struct{}] {
		return fn.FromPair(struct{}{}, p.store.Upsert(ctx, coll, records))
	}).Unwrap()
	return err
}

func (p *Pipeline) retryOpts(ctx context.Context, op string) fn.RetryOpts {
	opts := p.cfg.Retry
	opts.Retryable = func(err error) bool {
		return ctx.Err() == nil && retryable(err)
	}
	opts.OnRetry = func(attempt int, err error) {
		p.logger.Warn("retrying", "op", op, "attempt", attempt, "err", err)
	}
	return opts
}

func retryable(err error) bool { return !Terminal(err) }
