// Package library is the document metadata store: textbook records, their
// indexing state and the summaries and quizzes generated from them, kept as
// Book nodes in Neo4j.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/pkg/repo"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

const bookLabel = "Book"

// Library reads and updates Book nodes.
type Library struct {
	books  *repo.Neo4jRepo[domain.Document, string]
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Library.
type Option func(*options)

type options struct {
	sessions func(ctx context.Context) repo.Runner
}

// WithSessions replaces driver sessions, for tests.
func WithSessions(f func(ctx context.Context) repo.Runner) Option {
	return func(o *options) { o.sessions = f }
}

// New creates a Library on driver.
func New(driver neo4j.DriverWithContext, logger *slog.Logger, opts ...Option) *Library {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var repoOpts []repo.Neo4jOption[domain.Document, string]
	if o.sessions != nil {
		repoOpts = append(repoOpts, repo.WithSessions[domain.Document, string](o.sessions))
	}
	return &Library{
		books:  repo.NewNeo4jRepo[domain.Document, string](driver, bookLabel, bookToMap, bookFromRecord, repoOpts...),
		logger: logger,
		now:    time.Now,
	}
}

// FindDocumentByID returns the document or a domain.NotFoundError.
func (l *Library) FindDocumentByID(ctx context.Context, id string) (domain.Document, error) {
	if err := domain.ValidateDocumentID(id); err != nil {
		return domain.Document{}, err
	}
	doc, err := l.books.Get(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Document{}, domain.NewNotFound("document", id)
	}
	if err != nil {
		return domain.Document{}, domain.Upstream("library", "find document", err)
	}
	return doc, nil
}

// ListDocuments pages through documents ordered by id.
func (l *Library) ListDocuments(ctx context.Context, offset, limit int) ([]domain.Document, error) {
	docs, err := l.books.List(ctx, repo.ListOpts{Offset: offset, Limit: limit})
	if err != nil {
		return nil, domain.Upstream("library", "list documents", err)
	}
	return docs, nil
}

// SaveDocument registers or replaces a document record.
func (l *Library) SaveDocument(ctx context.Context, doc domain.Document) error {
	if err := domain.ValidateDocumentID(doc.ID); err != nil {
		return err
	}
	if err := domain.ValidateOutline(doc.Outline); err != nil {
		return err
	}
	if _, err := l.books.Save(ctx, doc); err != nil {
		return domain.Upstream("library", "save document", err)
	}
	return nil
}

// MarkIndexed records a completed ingestion. It is the last step of an
// ingestion run and is never called after a partial failure.
func (l *Library) MarkIndexed(ctx context.Context, id string, info domain.IndexInfo) error {
	err := l.books.Patch(ctx, id, map[string]any{
		"indexed":    true,
		"indexed_at": info.At,
		"points":     int64(info.Points),
		"collection": info.Collection,
	})
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NewNotFound("document", id)
	}
	if err != nil {
		return domain.Upstream("library", "mark indexed", err)
	}
	l.logger.Info("document indexed", "doc_id", id, "collection", info.Collection, "points", info.Points)
	return nil
}

// ClearIndexed drops the indexed flag ahead of a run that rewrites the
// document's points, so a failed run is never reported as indexed.
func (l *Library) ClearIndexed(ctx context.Context, id string) error {
	err := l.books.Patch(ctx, id, map[string]any{"indexed": false, "points": int64(0)})
	if errors.Is(err, repo.ErrNotFound) {
		return domain.NewNotFound("document", id)
	}
	if err != nil {
		return domain.Upstream("library", "clear indexed", err)
	}
	return nil
}

// SaveSummary stores a chapter summary on the document, replacing any earlier
// summary of the same chapter.
func (l *Library) SaveSummary(ctx context.Context, s domain.ChapterSummary) error {
	ok, err := l.books.Exec(ctx, `MATCH (b:Book {id: $id})
MERGE (b)-[:HAS_SUMMARY]->(s:Summary {chapter: $chapter})
SET s.text = $text, s.chunks_used = $chunks, s.created_at = $at
RETURN s.chapter`, map[string]any{
		"id":      s.DocID,
		"chapter": s.Chapter,
		"text":    s.Summary,
		"chunks":  int64(s.ChunksUsed),
		"at":      s.CreatedAt,
	})
	if err != nil {
		return domain.Upstream("library", "save summary", err)
	}
	if !ok {
		return domain.NewNotFound("document", s.DocID)
	}
	return nil
}

// SaveQuiz stores a quiz on the document and returns it with its id set.
func (l *Library) SaveQuiz(ctx context.Context, q domain.Quiz) (domain.Quiz, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = l.now()
	}
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return q, fmt.Errorf("library: encode quiz: %w", err)
	}
	ok, err := l.books.Exec(ctx, `MATCH (b:Book {id: $id})
CREATE (b)-[:HAS_QUIZ]->(q:Quiz {id: $quiz_id, unit: $unit, topic: $topic, questions: $questions, created_at: $at})
RETURN q.id`, map[string]any{
		"id":        q.DocID,
		"quiz_id":   q.ID,
		"unit":      q.Unit,
		"topic":     q.Topic,
		"questions": string(questions),
		"at":        q.CreatedAt,
	})
	if err != nil {
		return q, domain.Upstream("library", "save quiz", err)
	}
	if !ok {
		return q, domain.NewNotFound("document", q.DocID)
	}
	return q, nil
}

func bookToMap(d domain.Document) map[string]any {
	m := map[string]any{
		"id":        d.ID,
		"title":     d.Title,
		"grade":     d.Grade,
		"subject":   d.Subject,
		"file_path": d.FilePath,
		"indexed":   d.Indexed,
		"points":    int64(d.Points),
	}
	if len(d.Outline) > 0 {
		outline, _ := json.Marshal(d.Outline)
		m["outline"] = string(outline)
	}
	if !d.IndexedAt.IsZero() {
		m["indexed_at"] = d.IndexedAt
	}
	return m
}

func bookFromRecord(rec *neo4j.Record) (domain.Document, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return domain.Document{}, err
	}
	props := node.Props
	d := domain.Document{
		ID:       strProp(props, "id"),
		Title:    strProp(props, "title"),
		Grade:    strProp(props, "grade"),
		Subject:  strProp(props, "subject"),
		FilePath: strProp(props, "file_path"),
	}
	if v, ok := props["indexed"].(bool); ok {
		d.Indexed = v
	}
	if v, ok := props["points"].(int64); ok {
		d.Points = int(v)
	}
	if v, ok := props["indexed_at"].(time.Time); ok {
		d.IndexedAt = v
	}
	if raw := strProp(props, "outline"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &d.Outline); err != nil {
			return d, fmt.Errorf("library: book %s outline: %w", d.ID, err)
		}
	}
	return d, nil
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}
