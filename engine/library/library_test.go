package library

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// --- Mocks ---

type mockResult struct {
	records []*neo4j.Record
	idx     int
}

func (m *mockResult) Next(context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record { return m.records[m.idx-1] }
func (m *mockResult) Err() error            { return nil }

type mockRunner struct {
	records []*neo4j.Record
	err     error
	cyphers []string
	params  []map[string]any
}

func (m *mockRunner) Run(_ context.Context, cypher string, params map[string]any) (repo.Result, error) {
	m.cyphers = append(m.cyphers, cypher)
	m.params = append(m.params, params)
	if m.err != nil {
		return nil, m.err
	}
	return &mockResult{records: m.records}, nil
}

func (m *mockRunner) Close(context.Context) error { return nil }

func newTestLibrary(r *mockRunner) *Library {
	return New(nil, nil, WithSessions(func(context.Context) repo.Runner { return r }))
}

func bookRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{"n"}, Values: []any{dbtype.Node{Labels: []string{"Book"}, Props: props}}}
}

func rowRecord() *neo4j.Record {
	return &neo4j.Record{Keys: []string{"x"}, Values: []any{"ok"}}
}

// --- Tests ---

func TestFindDocumentByID(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	r := &mockRunner{records: []*neo4j.Record{bookRecord(map[string]any{
		"id": "b1", "title": "Geography", "grade": "7", "subject": "Social",
		"file_path": "s3://books/geo.pdf", "indexed": true, "points": int64(120), "indexed_at": at,
		"outline": `[{"title":"Unit 1: Landforms","page_start":1,"page_end":20}]`,
	})}}
	doc, err := newTestLibrary(r).FindDocumentByID(context.Background(), "b1")
	if err != nil {
		t.Fatalf("FindDocumentByID: %v", err)
	}
	if doc.Title != "Geography" || doc.FilePath != "s3://books/geo.pdf" || !doc.Indexed || doc.Points != 120 || !doc.IndexedAt.Equal(at) {
		t.Errorf("unexpected document %+v", doc)
	}
	if len(doc.Outline) != 1 || doc.Outline[0].PageEnd != 20 {
		t.Errorf("unexpected outline %+v", doc.Outline)
	}
}

func TestFindDocumentByID_NotFound(t *testing.T) {
	_, err := newTestLibrary(&mockRunner{}).FindDocumentByID(context.Background(), "nope")
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) || nf.Kind != "document" {
		t.Fatalf("expected document NotFoundError, got %v", err)
	}
}

func TestFindDocumentByID_Errors(t *testing.T) {
	r := &mockRunner{}
	if _, err := newTestLibrary(r).FindDocumentByID(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(r.cyphers) != 0 {
		t.Fatal("invalid id must not reach the database")
	}

	r = &mockRunner{err: errors.New("connection refused")}
	if _, err := newTestLibrary(r).FindDocumentByID(context.Background(), "b1"); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestFindDocumentByID_BadOutline(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{bookRecord(map[string]any{"id": "b1", "outline": "{"})}}
	if _, err := newTestLibrary(r).FindDocumentByID(context.Background(), "b1"); err == nil {
		t.Fatal("expected outline decode error")
	}
}

func TestSaveDocument(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{bookRecord(map[string]any{"id": "b1"})}}
	doc := domain.Document{ID: "b1", Title: "Geo", Outline: domain.Outline{{Title: "U1", PageStart: 1, PageEnd: 3}}}
	if err := newTestLibrary(r).SaveDocument(context.Background(), doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	props := r.params[0]["props"].(map[string]any)
	if !strings.Contains(props["outline"].(string), `"title":"U1"`) {
		t.Errorf("outline not stored as JSON: %v", props["outline"])
	}

	bad := domain.Document{ID: "b1", Outline: domain.Outline{{Title: "U1", PageStart: 3, PageEnd: 1}}}
	if err := newTestLibrary(r).SaveDocument(context.Background(), bad); !errors.Is(err, domain.ErrInvalidOutline) {
		t.Fatalf("expected invalid outline, got %v", err)
	}
}

func TestMarkIndexed(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{rowRecord()}}
	info := domain.IndexInfo{Collection: "geo_7_social", Points: 42, At: time.Now()}
	if err := newTestLibrary(r).MarkIndexed(context.Background(), "b1", info); err != nil {
		t.Fatalf("MarkIndexed: %v", err)
	}
	props := r.params[0]["props"].(map[string]any)
	if props["indexed"] != true || props["points"] != int64(42) || props["collection"] != "geo_7_social" {
		t.Errorf("unexpected props %v", props)
	}

	if err := newTestLibrary(&mockRunner{}).MarkIndexed(context.Background(), "gone", info); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClearIndexed(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{rowRecord()}}
	if err := newTestLibrary(r).ClearIndexed(context.Background(), "b1"); err != nil {
		t.Fatalf("ClearIndexed: %v", err)
	}
	props := r.params[0]["props"].(map[string]any)
	if props["indexed"] != false || props["points"] != int64(0) {
		t.Errorf("unexpected props %v", props)
	}

	if err := newTestLibrary(&mockRunner{}).ClearIndexed(context.Background(), "gone"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := newTestLibrary(&mockRunner{err: errors.New("down")}).ClearIndexed(context.Background(), "b1"); !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestSaveSummary(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{rowRecord()}}
	s := domain.ChapterSummary{DocID: "b1", Chapter: "unit 2 climate", Summary: "Key ideas", ChunksUsed: 5}
	if err := newTestLibrary(r).SaveSummary(context.Background(), s); err != nil {
		t.Fatalf("SaveSummary: %v", err)
	}
	if !strings.Contains(r.cyphers[0], "HAS_SUMMARY") || r.params[0]["chapter"] != "unit 2 climate" {
		t.Errorf("unexpected write %q %v", r.cyphers[0], r.params[0])
	}

	if err := newTestLibrary(&mockRunner{}).SaveSummary(context.Background(), s); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSaveQuiz(t *testing.T) {
	r := &mockRunner{records: []*neo4j.Record{rowRecord()}}
	q := domain.Quiz{DocID: "b1", Topic: "winds", Questions: []domain.QuizQuestion{{Question: "Q?", Options: []string{"a", "b", "c", "d"}, Answer: "a"}}}
	saved, err := newTestLibrary(r).SaveQuiz(context.Background(), q)
	if err != nil {
		t.Fatalf("SaveQuiz: %v", err)
	}
	if saved.ID == "" || saved.CreatedAt.IsZero() {
		t.Errorf("expected id and timestamp, got %+v", saved)
	}
	if !strings.Contains(r.params[0]["questions"].(string), `"question":"Q?"`) {
		t.Errorf("questions not stored as JSON: %v", r.params[0]["questions"])
	}
}
