//go:build integration

package ingest

import (
	"context"
	"os"
	"testing"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/semantic"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Re-ingesting a document into a live Qdrant must replace its points, not
// add to them.
func TestIngest_QdrantReingestReplaces(t *testing.T) {
	ctx := context.Background()
	vs, err := semantic.New(envOr("QDRANT_ADDR", "localhost:6334"), nil)
	if err != nil {
		t.Fatalf("qdrant connect: %v", err)
	}
	doc := domain.Document{ID: "itest1", Title: "Integration", Grade: "9", Subject: "Test"}
	coll := semantic.CollectionName(doc)
	t.Cleanup(func() {
		vs.DeleteCollection(context.Background(), coll)
		vs.Close()
	})

	lib := &mockLibrary{docs: map[string]domain.Document{doc.ID: doc}}
	p := New(lib, &mockLoader{text: "text"}, fakeChunker{n: 5}, &mockEmbedder{}, vs, testConfig(), nil)

	for run := 1; run <= 2; run++ {
		rep, err := p.Ingest(ctx, doc.ID)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if rep.Created != (run == 1) {
			t.Fatalf("run %d: created = %v", run, rep.Created)
		}
	}

	points, err := vs.Scroll(ctx, coll, map[string]string{semantic.KeyDocID: doc.ID}, 100)
	if err != nil {
		t.Fatalf("scroll: %v", err)
	}
	if len(points) != 5 {
		t.Fatalf("expected 5 points after re-ingest, got %d", len(points))
	}
	if len(lib.marked) != 2 {
		t.Fatalf("marked %d times", len(lib.marked))
	}
}
