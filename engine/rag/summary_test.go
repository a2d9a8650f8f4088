package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
)

func seedUnits(f *fixture) {
	vec := []float32{1, 0, 0}
	f.store.add(domain.Chunk{DocID: "geo7", Unit: "Unit 1: Landforms", Index: 1, Text: "Mountains rise."}, vec)
	f.store.add(domain.Chunk{DocID: "geo7", Unit: "Unit 2: Climate", SubChapter: "2.1 Rainfall", Index: 2, Text: "Rain falls in summer."}, vec)
	f.store.add(domain.Chunk{DocID: "geo7", Unit: "Unit 2: Climate", SubChapter: "2.1 Rainfall", Index: 1, Text: "Climate is long-term weather."}, vec)
}

func TestSummarize_FuzzyChapter(t *testing.T) {
	f := newFixture()
	seedUnits(f)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return fixed }
	f.gen.resp = "  - **Main Topic:** Climate  "

	sum, err := f.svc.Summarize(context.Background(), "geo7", "Unit 2")
	if err != nil {
		t.Fatal(err)
	}
	if sum.ChunksUsed != 2 || sum.Chapter != "Unit 2" || sum.DocID != "geo7" || !sum.CreatedAt.Equal(fixed) {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.Summary != "- **Main Topic:** Climate" {
		t.Fatalf("summary text = %q", sum.Summary)
	}

	prompt := f.gen.last()
	first, second := strings.Index(prompt, "Climate is long-term weather."), strings.Index(prompt, "Rain falls in summer.")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("chunks missing or out of order in prompt:\n%s", prompt)
	}
	if strings.Contains(prompt, "Mountains") {
		t.Error("other unit leaked into summary prompt")
	}
	if f.gen.tokens[0] != 800 {
		t.Errorf("max tokens = %d", f.gen.tokens[0])
	}
	if len(f.lib.summaries) != 1 || f.lib.summaries[0].Summary != sum.Summary {
		t.Fatalf("saved = %+v", f.lib.summaries)
	}
}

func TestSummarize_ExactTitle(t *testing.T) {
	f := newFixture()
	seedUnits(f)

	sum, err := f.svc.Summarize(context.Background(), "geo7", "unit 1:  LANDFORMS")
	if err != nil {
		t.Fatal(err)
	}
	if sum.ChunksUsed != 1 {
		t.Fatalf("chunks used = %d", sum.ChunksUsed)
	}
}

func TestSummarize_TruncatesText(t *testing.T) {
	f := newFixture()
	for i := 1; i <= 10; i++ {
		f.store.add(domain.Chunk{DocID: "geo7", Unit: "Unit 3", Index: i, Text: strings.Repeat("w", 2000)}, []float32{1})
	}

	if _, err := f.svc.Summarize(context.Background(), "geo7", "Unit 3"); err != nil {
		t.Fatal(err)
	}
	got := strings.Count(f.gen.last(), "w") - strings.Count(summaryPrompt("Unit 3", ""), "w")
	if got > 12000 || got < 11000 {
		t.Fatalf("summary text carries %d chars, want it truncated to about 12000", got)
	}
}

func TestSummarize_UnknownChapter(t *testing.T) {
	f := newFixture()
	seedUnits(f)

	_, err := f.svc.Summarize(context.Background(), "geo7", "Unit 9")
	var nf *domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if len(nf.Available) == 0 || !strings.Contains(strings.Join(nf.Available, "|"), "unit 2 climate") {
		t.Fatalf("available titles = %v", nf.Available)
	}
	if f.gen.calls() != 0 {
		t.Fatal("generator called for unknown chapter")
	}
}

func TestSummarize_EmptyChapter(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Summarize(context.Background(), "geo7", " "); !errors.Is(err, domain.ErrEmptyChapter) {
		t.Fatalf("got %v", err)
	}
}

func TestSummarize_GenerationFails(t *testing.T) {
	f := newFixture()
	seedUnits(f)
	f.gen.err = errors.New("timeout")

	_, err := f.svc.Summarize(context.Background(), "geo7", "Unit 1")
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if len(f.lib.summaries) != 0 {
		t.Fatal("failed summary was saved")
	}
}

func TestSummarize_EmptyOutput(t *testing.T) {
	f := newFixture()
	seedUnits(f)
	f.gen.resp = ""

	sum, err := f.svc.Summarize(context.Background(), "geo7", "Unit 1")
	if err != nil {
		t.Fatal(err)
	}
	if sum.Summary != emptySummary {
		t.Fatalf("summary = %q", sum.Summary)
	}
}

func TestSummarize_SaveFailureIgnored(t *testing.T) {
	f := newFixture()
	seedUnits(f)
	f.lib.err = errors.New("neo4j down")

	if _, err := f.svc.Summarize(context.Background(), "geo7", "Unit 1"); err != nil {
		t.Fatalf("save failure should not fail the summary: %v", err)
	}
}
