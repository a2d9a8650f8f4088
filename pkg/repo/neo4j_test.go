package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// --- Mock infrastructure ---

type mockResult struct {
	records []*neo4j.Record
	idx     int
	err     error
}

func (m *mockResult) Next(ctx context.Context) bool {
	if m.idx < len(m.records) {
		m.idx++
		return true
	}
	return false
}

func (m *mockResult) Record() *neo4j.Record {
	return m.records[m.idx-1]
}

func (m *mockResult) Err() error { return m.err }

type mockRunner struct {
	result  *mockResult
	err     error
	cyphers []string
	params  []map[string]any
	closed  int
}

func (m *mockRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	m.cyphers = append(m.cyphers, cypher)
	m.params = append(m.params, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockRunner) Close(ctx context.Context) error {
	m.closed++
	return nil
}

type entity struct {
	ID   string
	Name string
}

func makeRecord(id, name string) *neo4j.Record {
	return &neo4j.Record{
		Values: []any{map[string]any{"id": id, "name": name}},
		Keys:   []string{"n"},
	}
}

func newTestRepo(r *mockRunner) *Neo4jRepo[entity, string] {
	return NewNeo4jRepo[entity, string](
		nil, "Entity",
		func(e entity) map[string]any { return map[string]any{"id": e.ID, "name": e.Name} },
		func(rec *neo4j.Record) (entity, error) {
			if len(rec.Values) == 0 {
				return entity{}, errors.New("empty")
			}
			m, ok := rec.Values[0].(map[string]any)
			if !ok {
				return entity{}, errors.New("bad type")
			}
			return entity{ID: m["id"].(string), Name: m["name"].(string)}, nil
		},
		WithSessions[entity, string](func(context.Context) Runner { return r }),
	)
}

// --- Tests ---

func TestNewNeo4jRepoDefaults(t *testing.T) {
	r := NewNeo4jRepo[map[string]any, string](nil, "Book", nil, nil)
	if r.idKey != "id" || r.Label() != "Book" {
		t.Fatalf("unexpected defaults: %s %s", r.idKey, r.Label())
	}
	r = NewNeo4jRepo[map[string]any, string](nil, "Book", nil, nil, WithIDKey[map[string]any, string]("uuid"))
	if r.idKey != "uuid" {
		t.Fatalf("expected idKey=uuid, got %s", r.idKey)
	}
}

func TestGet_Success(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{makeRecord("1", "Alice")}}}
	e, err := newTestRepo(r).Get(context.Background(), "1")
	if err != nil {
		t.Fatal(err)
	}
	if e.ID != "1" || e.Name != "Alice" {
		t.Fatalf("got %+v", e)
	}
	if r.closed != 1 {
		t.Errorf("session must be closed, closed=%d", r.closed)
	}
}

func TestGet_NotFound(t *testing.T) {
	r := &mockRunner{result: &mockResult{}}
	_, err := newTestRepo(r).Get(context.Background(), "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGet_ResultError(t *testing.T) {
	r := &mockRunner{result: &mockResult{err: errors.New("stream broke")}}
	_, err := newTestRepo(r).Get(context.Background(), "x")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected stream error, got %v", err)
	}
}

func TestGet_RunError(t *testing.T) {
	r := &mockRunner{err: errors.New("db down")}
	_, err := newTestRepo(r).Get(context.Background(), "x")
	if err == nil || err.Error() != "db down" {
		t.Fatalf("expected db down, got %v", err)
	}
}

func TestList_FilterAndDefaults(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{makeRecord("1", "A"), makeRecord("2", "B")}}}
	items, err := newTestRepo(r).List(context.Background(), ListOpts{Filter: map[string]any{"subject": "geo", "grade": "7"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	cypher := r.cyphers[0]
	if !strings.Contains(cypher, "WHERE n.grade = $f0 AND n.subject = $f1") {
		t.Errorf("unexpected cypher %q", cypher)
	}
	if r.params[0]["limit"] != 100 || r.params[0]["f0"] != "7" {
		t.Errorf("unexpected params %v", r.params[0])
	}
}

func TestList_FromRecordError(t *testing.T) {
	bad := &neo4j.Record{Values: []any{"not a map"}, Keys: []string{"n"}}
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{bad}}}
	if _, err := newTestRepo(r).List(context.Background(), ListOpts{Limit: 10}); err == nil {
		t.Fatal("expected error")
	}
}

func TestSave(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{makeRecord("3", "C")}}}
	e, err := newTestRepo(r).Save(context.Background(), entity{ID: "3", Name: "C"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Name != "C" {
		t.Fatalf("got %+v", e)
	}
	if !strings.HasPrefix(r.cyphers[0], "MERGE (n:Entity {id: $id})") || r.params[0]["id"] != "3" {
		t.Errorf("unexpected query %q %v", r.cyphers[0], r.params[0])
	}
}

func TestSave_NoResult(t *testing.T) {
	r := &mockRunner{result: &mockResult{}}
	if _, err := newTestRepo(r).Save(context.Background(), entity{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestPatch(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{{Values: []any{"1"}, Keys: []string{"n.id"}}}}}
	if err := newTestRepo(r).Patch(context.Background(), "1", map[string]any{"indexed": true}); err != nil {
		t.Fatal(err)
	}
	if r.params[0]["props"].(map[string]any)["indexed"] != true {
		t.Errorf("unexpected params %v", r.params[0])
	}

	r = &mockRunner{result: &mockResult{}}
	if err := newTestRepo(r).Patch(context.Background(), "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	r := &mockRunner{result: &mockResult{}}
	if err := newTestRepo(r).Delete(context.Background(), "1"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(r.cyphers[0], "DETACH DELETE") {
		t.Errorf("unexpected cypher %q", r.cyphers[0])
	}
	r = &mockRunner{err: errors.New("fail")}
	if err := newTestRepo(r).Delete(context.Background(), "1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestExec(t *testing.T) {
	r := &mockRunner{result: &mockResult{records: []*neo4j.Record{makeRecord("1", "x")}}}
	ok, err := newTestRepo(r).Exec(context.Background(), "MATCH (b) RETURN b", nil)
	if err != nil || !ok {
		t.Fatalf("expected a row, got %v %v", ok, err)
	}
	r = &mockRunner{result: &mockResult{}}
	ok, err = newTestRepo(r).Exec(context.Background(), "MATCH (b) RETURN b", nil)
	if err != nil || ok {
		t.Fatalf("expected no row, got %v %v", ok, err)
	}
}
