// Package rag answers questions about a textbook. It checks the answer cache,
// retrieves relevant chunks, gates them by similarity, prompts the generator
// with grounded or fallback instructions and caches successful answers.
package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/WessleyAI/wessley-tutor/engine/cache"
	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/retrieval"
	"github.com/WessleyAI/wessley-tutor/pkg/resilience"
)

// Answer sources.
const (
	SourceCache   = "cache"
	SourceRAG     = "rag"
	SourceGeneral = "general"
	SourceError   = "error"
)

const (
	// FallbackNotice prefixes answers generated without document context.
	FallbackNotice = "⚠️ This topic is not found in your curriculum materials.\n\n"
	// ErrorPrefix starts the answer text when generation failed.
	ErrorPrefix = "⚠️ Error calling local LLM: "
	// SearchErrorPrefix starts the answer text when retrieval failed.
	SearchErrorPrefix = "⚠️ Error searching your curriculum materials: "

	emptyAnswer = "No response from model"
)

// Retriever is the subset of the retrieval engine the service uses.
type Retriever interface {
	Open(ctx context.Context, docID string) (domain.Document, string, error)
	Retrieve(ctx context.Context, docID, question string, limit int, filters map[string]string) ([]retrieval.Hit, error)
	Resolve(ctx context.Context, coll, docID, ref string) (retrieval.Match, error)
	FetchUnit(ctx context.Context, docID, chapter string) (string, []domain.Chunk, error)
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// AnswerCache stores answers per document and question.
type AnswerCache interface {
	Get(ctx context.Context, docID, question string) (cache.Entry, bool, error)
	Set(ctx context.Context, docID, question string, e cache.Entry) error
}

// Library persists generated study material on the document record.
type Library interface {
	SaveSummary(ctx context.Context, s domain.ChapterSummary) error
	SaveQuiz(ctx context.Context, q domain.Quiz) (domain.Quiz, error)
}

// Config tunes answering.
type Config struct {
	Limit            int
	Threshold        float32
	PreviewChars     int // per-context cap inside the prompt
	MaxTokens        int
	GenerateTimeout  time.Duration
	SummaryMaxChars  int
	SummaryMaxTokens int
	QuizLimit        int
	QuizMaxTokens    int
}

func DefaultConfig() Config {
	return Config{
		Limit:            4,
		Threshold:        0.7,
		PreviewChars:     500,
		MaxTokens:        512,
		GenerateTimeout:  5 * time.Minute,
		SummaryMaxChars:  12000,
		SummaryMaxTokens: 800,
		QuizLimit:        20,
		QuizMaxTokens:    1500,
	}
}

// Answer is the result of Ask. Degraded is set when an upstream failure
// shaped the answer; degraded answers are never cached.
type Answer struct {
	Source   string   `json:"source"`
	Text     string   `json:"answer"`
	Contexts []string `json:"contexts"`
	Degraded bool     `json:"degraded,omitempty"`
}

// Service is the generation orchestrator. It holds no per-request state and
// is safe for concurrent use.
type Service struct {
	retriever Retriever
	gen       Generator
	cache     AnswerCache
	lib       Library
	breaker   *resilience.Breaker
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithBreaker routes generation calls through b.
func WithBreaker(b *resilience.Breaker) Option {
	return func(s *Service) { s.breaker = b }
}

// WithLibrary persists summaries and quizzes.
func WithLibrary(lib Library) Option {
	return func(s *Service) { s.lib = lib }
}

// New creates a Service. A nil cache disables caching.
func New(r Retriever, gen Generator, c AnswerCache, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.PreviewChars <= 0 {
		cfg.PreviewChars = def.PreviewChars
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = def.GenerateTimeout
	}
	if cfg.SummaryMaxChars <= 0 {
		cfg.SummaryMaxChars = def.SummaryMaxChars
	}
	if cfg.SummaryMaxTokens <= 0 {
		cfg.SummaryMaxTokens = def.SummaryMaxTokens
	}
	if cfg.QuizLimit <= 0 {
		cfg.QuizLimit = def.QuizLimit
	}
	if cfg.QuizMaxTokens <= 0 {
		cfg.QuizMaxTokens = def.QuizMaxTokens
	}
	s := &Service{retriever: r, gen: gen, cache: c, cfg: cfg, logger: logger, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ask answers a question about a document.
//
// Invalid input and missing documents or collections are returned as errors.
// Every other failure yields an answer with Source "error": a retrieval
// outage returns SearchErrorPrefix plus the cause without calling the
// generator, and a generation failure returns ErrorPrefix plus the cause.
// Only clean answers are cached, and a failed cache read or write never fails
// the request.
func (s *Service) Ask(ctx context.Context, docID, question string) (Answer, error) {
	if err := domain.ValidateDocumentID(docID); err != nil {
		return Answer{}, err
	}
	if err := domain.ValidateQuestion(question); err != nil {
		return Answer{}, err
	}
	log := s.logger.With("doc_id", docID)

	if s.cache != nil {
		e, ok, err := s.cache.Get(ctx, docID, question)
		switch {
		case err != nil:
			log.Warn("cache read failed", "err", err)
		case ok:
			log.Debug("cache hit")
			return Answer{Source: SourceCache, Text: e.Answer, Contexts: e.Contexts}, nil
		}
	}

	hits, err := s.retriever.Retrieve(ctx, docID, question, s.cfg.Limit, nil)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidInput) {
			return Answer{}, err
		}
		log.Error("retrieval failed", "err", err)
		return Answer{Source: SourceError, Text: SearchErrorPrefix + err.Error(), Contexts: []string{}, Degraded: true}, nil
	}

	passed := retrieval.Gate(hits, s.cfg.Threshold)
	contexts := make([]string, len(passed))
	for i, h := range passed {
		contexts[i] = h.Text
	}

	source, prompt := SourceRAG, groundedPrompt(question, contexts, s.cfg.PreviewChars)
	if len(passed) == 0 {
		source, prompt = SourceGeneral, fallbackPrompt(question)
	}
	log.Debug("prompt built", "source", source, "hits", len(hits), "contexts", len(passed))

	text, err := s.generate(ctx, prompt, s.cfg.MaxTokens)
	if err != nil {
		log.Error("generation failed", "source", source, "err", err)
		return Answer{Source: SourceError, Text: ErrorPrefix + err.Error(), Contexts: contexts, Degraded: true}, nil
	}
	if text == "" {
		text = emptyAnswer
	}
	if source == SourceGeneral {
		text = FallbackNotice + text
	}

	ans := Answer{Source: source, Text: text, Contexts: contexts}
	if s.cache != nil {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.cache.Set(wctx, docID, question, cache.Entry{Answer: text, Contexts: contexts}); err != nil {
			log.Warn("cache write failed", "err", err)
		}
		cancel()
	}
	return ans, nil
}

// generate calls the generator with its own deadline. The call is detached
// from caller cancellation so an abandoned request still completes.
func (s *Service) generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GenerateTimeout)
	defer cancel()

	call := func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, prompt, maxTokens)
	}
	var (
		out string
		err error
	)
	if s.breaker != nil {
		out, err = resilience.Do(gctx, s.breaker, call)
	} else {
		out, err = call(gctx)
	}
	if err != nil {
		return "", domain.Upstream("generation", "generate", err)
	}
	return strings.TrimSpace(out), nil
}
