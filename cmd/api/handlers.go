package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/rag"
	"github.com/WessleyAI/wessley-tutor/pkg/metrics"
	"github.com/WessleyAI/wessley-tutor/pkg/mid"
)

// maxBody bounds request bodies.
const maxBody = 1 << 20

type tutor interface {
	Ask(ctx context.Context, docID, question string) (rag.Answer, error)
	Summarize(ctx context.Context, docID, chapter string) (domain.ChapterSummary, error)
	GenerateQuiz(ctx context.Context, req rag.QuizRequest) (domain.Quiz, error)
}

type documents interface {
	FindDocumentByID(ctx context.Context, id string) (domain.Document, error)
}

// jobQueue hands documents to the ingestion workers.
type jobQueue interface {
	Enqueue(ctx context.Context, docID string) error
}

type server struct {
	tutor   tutor
	docs    documents
	jobs    jobQueue
	metrics *metrics.Tutor
	logger  *slog.Logger
	cors    string
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/summary", s.handleSummary)
	mux.HandleFunc("POST /api/quiz", s.handleQuiz)
	mux.HandleFunc("POST /api/books/{id}/preprocess", s.handlePreprocess)
	mux.Handle("GET /metrics", s.metrics.Registry().Handler())

	// Metrics wraps the mux directly: outer layers replace the request.
	return mid.Chain(mux,
		mid.Recover(s.logger),
		mid.OTel("tutor-api"),
		mid.RequestID(),
		mid.Logger(s.logger),
		mid.CORS(s.cors),
		mid.MaxBody(maxBody),
		mid.Metrics(s.metrics),
	)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ChatRequest is the JSON body for POST /api/chat.
type ChatRequest struct {
	DocID    string `json:"doc_id"`
	Question string `json:"question"`
}

// ChatResponse is the JSON response for POST /api/chat.
type ChatResponse struct {
	Source   string   `json:"source"`
	Answer   string   `json:"answer"`
	Contexts []string `json:"contexts"`
}

// handleChat answers a question. Upstream failures still produce a 200 with
// an error-annotated answer.
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	start := time.Now()
	ans, err := s.tutor.Ask(r.Context(), req.DocID, req.Question)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.metrics.Answer(ans.Source, time.Since(start))
	if ans.Degraded {
		s.metrics.Degraded()
	}
	contexts := ans.Contexts
	if contexts == nil {
		contexts = []string{}
	}
	writeJSON(w, http.StatusOK, ChatResponse{Source: ans.Source, Answer: ans.Text, Contexts: contexts})
}

type summaryRequest struct {
	DocID   string `json:"doc_id"`
	Chapter string `json:"chapter"`
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if !s.decode(w, r, &req) {
		return
	}
	sum, err := s.tutor.Summarize(r.Context(), req.DocID, req.Chapter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var req rag.QuizRequest
	if !s.decode(w, r, &req) {
		return
	}
	quiz, err := s.tutor.GenerateQuiz(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

// handlePreprocess queues a document for ingestion once it is known to exist.
func (s *server) handlePreprocess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := domain.ValidateDocumentID(id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.docs.FindDocumentByID(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.jobs.Enqueue(r.Context(), id); err != nil {
		s.writeError(w, r, domain.Upstream("nats", "enqueue ingest job", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"doc_id": id, "status": "queued"})
}

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return false
	}
	return true
}

type errorBody struct {
	Error     string   `json:"error"`
	Available []string `json:"available,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	body := errorBody{Error: err.Error(), RequestID: mid.GetRequestID(r.Context())}
	var nf *domain.NotFoundError
	if errors.As(err, &nf) {
		body.Available = nf.Available
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "status", status, "err", err, "request_id", body.RequestID)
	}
	writeJSON(w, status, body)
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrParseFailure):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
