package rag

import (
	"cmp"
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/cache"
	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/retrieval"
	"github.com/WessleyAI/wessley-tutor/engine/semantic"
)

// memStore is an in-memory vector store. Canned results, when set, are
// returned from Search instead of cosine ranking.
type memStore struct {
	exists    bool
	err       error
	points    []memPoint
	canned    []semantic.SearchResult
	lastQuery map[string]string
}

type memPoint struct {
	vec   []float32
	chunk domain.Chunk
}

func (m *memStore) add(c domain.Chunk, vec []float32) {
	m.points = append(m.points, memPoint{vec: vec, chunk: c})
}

func (m *memStore) CollectionExists(context.Context, string) (bool, error) {
	return m.exists, m.err
}

func (m *memStore) Search(_ context.Context, _ string, vec []float32, limit int, filters map[string]string) ([]semantic.SearchResult, error) {
	m.lastQuery = filters
	if m.err != nil {
		return nil, m.err
	}
	if m.canned != nil {
		return m.canned, nil
	}
	var out []semantic.SearchResult
	for _, p := range m.points {
		if matches(p.chunk, filters) {
			out = append(out, semantic.SearchResult{Score: cosine(vec, p.vec), Chunk: p.chunk})
		}
	}
	slices.SortStableFunc(out, func(a, b semantic.SearchResult) int { return cmp.Compare(b.Score, a.Score) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Scroll(_ context.Context, _ string, filters map[string]string, limit int) ([]semantic.SearchResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []semantic.SearchResult
	for _, p := range m.points {
		if matches(p.chunk, filters) && len(out) < limit {
			out = append(out, semantic.SearchResult{Chunk: p.chunk})
		}
	}
	return out, nil
}

func matches(c domain.Chunk, filters map[string]string) bool {
	for k, v := range filters {
		var got string
		switch k {
		case semantic.KeyDocID:
			got = c.DocID
		case semantic.KeyUnitNorm:
			got = domain.NormalizeTitle(c.Unit)
		case semantic.KeySubNorm:
			got = domain.NormalizeTitle(c.SubChapter)
		}
		if got != v {
			return false
		}
	}
	return true
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// mockEmbedder returns vecs[text], or def for unknown text.
type mockEmbedder struct {
	vecs map[string][]float32
	def  []float32
	err  error
}

func (m *mockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	if v, ok := m.vecs[text]; ok {
		return v, nil
	}
	return m.def, nil
}

type mockDocs struct {
	docs map[string]domain.Document
	err  error
}

func (m *mockDocs) FindDocumentByID(_ context.Context, id string) (domain.Document, error) {
	if m.err != nil {
		return domain.Document{}, m.err
	}
	d, ok := m.docs[id]
	if !ok {
		return domain.Document{}, domain.NewNotFound("document", id)
	}
	return d, nil
}

type mockGenerator struct {
	mu      sync.Mutex
	resp    string
	err     error
	prompts []string
	tokens  []int
}

func (m *mockGenerator) Generate(_ context.Context, prompt string, maxTokens int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	m.tokens = append(m.tokens, maxTokens)
	return m.resp, m.err
}

func (m *mockGenerator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *mockGenerator) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

type mockLibrary struct {
	summaries []domain.ChapterSummary
	quizzes   []domain.Quiz
	err       error
}

func (m *mockLibrary) SaveSummary(_ context.Context, s domain.ChapterSummary) error {
	if m.err != nil {
		return m.err
	}
	m.summaries = append(m.summaries, s)
	return nil
}

func (m *mockLibrary) SaveQuiz(_ context.Context, q domain.Quiz) (domain.Quiz, error) {
	if m.err != nil {
		return domain.Quiz{}, m.err
	}
	q.ID = "quiz-1"
	m.quizzes = append(m.quizzes, q)
	return q, nil
}

// brokenStore fails every cache call.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}

var geoDoc = domain.Document{ID: "geo7", Title: "Geography", Grade: "7", Subject: "Social Studies"}

type fixture struct {
	store *memStore
	emb   *mockEmbedder
	docs  *mockDocs
	gen   *mockGenerator
	lib   *mockLibrary
	cache *cache.Cache
	svc   *Service
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		store: &memStore{exists: true},
		emb:   &mockEmbedder{def: []float32{1, 0, 0}},
		docs:  &mockDocs{docs: map[string]domain.Document{geoDoc.ID: geoDoc}},
		gen:   &mockGenerator{resp: "Plateaus are raised flat lands."},
		lib:   &mockLibrary{},
		cache: cache.New(cache.NewMemoryStore(), time.Hour),
	}
	r := retrieval.New(f.emb, f.store, f.docs, retrieval.DefaultConfig(), nil)
	opts = append([]Option{WithLibrary(f.lib)}, opts...)
	f.svc = New(r, f.gen, f.cache, DefaultConfig(), nil, opts...)
	return f
}

func hit(score float32, unit, text string) semantic.SearchResult {
	return semantic.SearchResult{Score: score, Chunk: domain.Chunk{DocID: geoDoc.ID, Unit: unit, Text: text}}
}
