package metrics

import (
	"strconv"
	"time"
)

// Tutor names the series the API and ingestion commands record.
type Tutor struct {
	reg *Registry
}

func NewTutor(reg *Registry) *Tutor {
	return &Tutor{reg: reg}
}

func (t *Tutor) Registry() *Registry { return t.reg }

// Answer records one chat answer by source (cache, rag, general, error)
// and how long it took.
func (t *Tutor) Answer(source string, took time.Duration) {
	t.reg.Counter("tutor_answers_total", "Chat answers by source", "source", source).Inc()
	t.reg.Histogram("tutor_answer_duration_seconds", "Chat answer latency by source", nil, "source", source).Observe(took.Seconds())
}

// Degraded counts answers produced after a retrieval failure.
func (t *Tutor) Degraded() {
	t.reg.Counter("tutor_answers_degraded_total", "Answers generated without retrieval after an upstream failure").Inc()
}

// Request records an API call outcome by route and status code.
func (t *Tutor) Request(route string, status int, took time.Duration) {
	t.reg.Counter("tutor_http_requests_total", "API requests by route and status", "route", route, "code", strconv.Itoa(status)).Inc()
	t.reg.Histogram("tutor_http_request_duration_seconds", "API latency by route", nil, "route", route).Observe(took.Seconds())
}

// Ingested records a finished ingestion run.
func (t *Tutor) Ingested(chunks, points int, took time.Duration) {
	t.reg.Counter("tutor_ingest_chunks_total", "Chunks produced by ingestion").Add(int64(chunks))
	t.reg.Counter("tutor_ingest_points_total", "Points written to the vector store").Add(int64(points))
	t.reg.Histogram("tutor_ingest_duration_seconds", "Ingestion run latency", nil).Observe(took.Seconds())
}

// Job records an ingestion job outcome: ok, retry or dead.
func (t *Tutor) Job(status string) {
	t.reg.Counter("tutor_ingest_jobs_total", "Ingestion jobs by outcome", "status", status).Inc()
}

// BreakerState exports the generation breaker state (0 closed, 1 open, 2 half-open).
func (t *Tutor) BreakerState(service string, state int) {
	t.reg.Gauge("tutor_breaker_state", "Circuit breaker state by service", "service", service).Set(int64(state))
}
