package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	r := New()
	c := r.Counter("test_total", "A test counter")
	c.Inc()
	c.Add(5)
	if c.Value() != 6 {
		t.Fatalf("expected 6, got %d", c.Value())
	}
	if r.Counter("test_total", "") != c {
		t.Fatal("expected same counter instance")
	}
	if r.Counter("test_total", "", "source", "cache") == c {
		t.Fatal("labelled series should be distinct")
	}
}

func TestGauge(t *testing.T) {
	g := New().Gauge("test_gauge", "A test gauge")
	g.Set(42)
	g.Inc()
	g.Inc()
	g.Dec()
	if g.Value() != 43 {
		t.Fatalf("expected 43, got %d", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := New().Histogram("test_duration_seconds", "A test histogram", []float64{1.0, 0.1, 0.5})
	h.Observe(0.05)
	h.Observe(0.3)
	h.Observe(0.8)
	h.Observe(2.0)

	counts, sum, count := h.snapshot()
	if count != 4 {
		t.Fatalf("expected count 4, got %d", count)
	}
	want := []uint64{1, 1, 1}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("bucket %d = %d, want %d", i, counts[i], want[i])
		}
	}
	if sum < 3.149 || sum > 3.151 {
		t.Fatalf("sum = %g", sum)
	}
}

func TestKindMismatchPanics(t *testing.T) {
	r := New()
	r.Counter("x", "")
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	r.Gauge("x", "")
}

func TestRender(t *testing.T) {
	r := New()
	r.Counter("tutor_answers_total", "Answers", "source", "rag").Add(3)
	r.Counter("tutor_answers_total", "Answers", "source", "cache").Inc()
	r.Gauge("tutor_up", "").Set(1)
	r.Histogram("tutor_latency_seconds", "Latency", []float64{0.5, 1}, "route", "chat").Observe(0.7)

	out := r.Render()
	for _, want := range []string{
		"# HELP tutor_answers_total Answers\n# TYPE tutor_answers_total counter\n",
		"tutor_answers_total{source=\"cache\"} 1\ntutor_answers_total{source=\"rag\"} 3\n",
		"# TYPE tutor_up gauge\ntutor_up 1\n",
		`tutor_latency_seconds_bucket{route="chat",le="0.5"} 0`,
		`tutor_latency_seconds_bucket{route="chat",le="1"} 1`,
		`tutor_latency_seconds_bucket{route="chat",le="+Inf"} 1`,
		`tutor_latency_seconds_sum{route="chat"} 0.7`,
		`tutor_latency_seconds_count{route="chat"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "# HELP tutor_up") {
		t.Error("empty help should be omitted")
	}
	if strings.Index(out, "tutor_answers_total") > strings.Index(out, "tutor_up") {
		t.Error("families should render in registration order")
	}
}

func TestLabelEscaping(t *testing.T) {
	r := New()
	r.Counter("c", "", "q", "say \"hi\"\\\n").Inc()
	if !strings.Contains(r.Render(), `c{q="say \"hi\"\\\n"} 1`) {
		t.Fatalf("bad escaping:\n%s", r.Render())
	}
}

func TestHandler(t *testing.T) {
	r := New()
	r.Counter("hits_total", "Hits").Inc()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "hits_total 1") {
		t.Errorf("body:\n%s", rec.Body.String())
	}
}

func TestTutor(t *testing.T) {
	tm := NewTutor(New())
	tm.Answer("rag", 2*time.Second)
	tm.Answer("rag", time.Second)
	tm.Degraded()
	tm.Request("/api/chat", 200, 10*time.Millisecond)
	tm.Ingested(12, 12, time.Minute)
	tm.Job("ok")
	tm.BreakerState("generation", 1)

	out := tm.Registry().Render()
	for _, want := range []string{
		`tutor_answers_total{source="rag"} 2`,
		`tutor_answer_duration_seconds_count{source="rag"} 2`,
		"tutor_answers_degraded_total 1",
		`tutor_http_requests_total{route="/api/chat",code="200"} 1`,
		"tutor_ingest_points_total 12",
		`tutor_ingest_jobs_total{status="ok"} 1`,
		`tutor_breaker_state{service="generation"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}
