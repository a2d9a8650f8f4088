package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
)

const (
	DefaultQuizQuestions = 5
	MaxQuizQuestions     = 20
)

// QuizRequest asks for questions on a topic, optionally within one unit.
type QuizRequest struct {
	DocID        string `json:"doc_id"`
	Unit         string `json:"unit,omitempty"`
	Topic        string `json:"topic"`
	NumQuestions int    `json:"num_questions,omitempty"`
}

// GenerateQuiz builds multiple-choice questions from the chunks closest to
// the topic. Output that holds no JSON array of questions is a
// domain.ParseError.
func (s *Service) GenerateQuiz(ctx context.Context, req QuizRequest) (domain.Quiz, error) {
	if err := domain.ValidateDocumentID(req.DocID); err != nil {
		return domain.Quiz{}, err
	}
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		topic = strings.TrimSpace(req.Unit)
	}
	if topic == "" {
		return domain.Quiz{}, domain.NewValidationError("topic", req.Topic, domain.ErrInvalidInput)
	}
	n := req.NumQuestions
	if n == 0 {
		n = DefaultQuizQuestions
	}
	if n < 0 || n > MaxQuizQuestions {
		return domain.Quiz{}, domain.NewValidationError("num_questions", fmt.Sprint(n), domain.ErrInvalidInput)
	}

	var filters map[string]string
	if unit := strings.TrimSpace(req.Unit); unit != "" {
		_, coll, err := s.retriever.Open(ctx, req.DocID)
		if err != nil {
			return domain.Quiz{}, err
		}
		m, err := s.retriever.Resolve(ctx, coll, req.DocID, unit)
		if err != nil {
			return domain.Quiz{}, err
		}
		filters = map[string]string{m.Key: m.Title}
	}

	hits, err := s.retriever.Retrieve(ctx, req.DocID, topic, s.cfg.QuizLimit, filters)
	if err != nil {
		return domain.Quiz{}, err
	}
	chunks := make([]string, 0, len(hits))
	size := 0
	for _, h := range hits {
		if size+len(h.Text) > s.cfg.SummaryMaxChars {
			break
		}
		chunks = append(chunks, h.Text)
		size += len(h.Text)
	}
	if len(chunks) == 0 {
		return domain.Quiz{}, domain.NewNotFound("chunks", topic)
	}

	prompt := quizPrompt(topic, chunks, n)
	raw, err := s.generate(ctx, prompt, s.cfg.QuizMaxTokens)
	if err != nil {
		return domain.Quiz{}, err
	}
	questions, err := ParseQuiz(prompt, raw)
	if err != nil {
		s.logger.Error("quiz output unparseable", "doc_id", req.DocID, "topic", topic, "raw", raw, "err", err)
		return domain.Quiz{}, err
	}
	if len(questions) > n {
		questions = questions[:n]
	}

	quiz := domain.Quiz{
		DocID:     req.DocID,
		Unit:      req.Unit,
		Topic:     topic,
		Questions: questions,
		CreatedAt: s.now().UTC(),
	}
	if s.lib != nil {
		if quiz, err = s.lib.SaveQuiz(context.WithoutCancel(ctx), quiz); err != nil {
			return domain.Quiz{}, domain.Upstream("library", "save quiz", err)
		}
	}
	return quiz, nil
}

// ParseQuiz extracts the question array from generator output. Output wrapped
// as a quoted string is unquoted first; anything outside the first '[' and
// last ']' is ignored. Missing fields get defaults.
func ParseQuiz(prompt, raw string) ([]domain.QuizQuestion, error) {
	fail := func(err error) error {
		return &domain.ParseError{What: "quiz", Input: prompt, Raw: raw, Err: err}
	}

	out := strings.TrimSpace(raw)
	if len(out) >= 2 && strings.HasPrefix(out, `"`) && strings.HasSuffix(out, `"`) {
		out = strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(out[1 : len(out)-1])
	}
	start, end := strings.IndexByte(out, '['), strings.LastIndexByte(out, ']')
	if start < 0 || end < start {
		return nil, fail(errors.New("no JSON array in output"))
	}

	var items []map[string]any
	if err := json.Unmarshal([]byte(out[start:end+1]), &items); err != nil {
		return nil, fail(err)
	}

	questions := make([]domain.QuizQuestion, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		q := domain.QuizQuestion{
			Question:    str(it["question"]),
			Options:     []string{},
			Answer:      str(it["answer"]),
			Hint:        str(it["hint"]),
			Explanation: str(it["explanation"]),
		}
		if q.Question == "" {
			q.Question = "No question text"
		}
		if opts, ok := it["options"].([]any); ok {
			for _, o := range opts {
				if s := str(o); s != "" {
					q.Options = append(q.Options, s)
				}
			}
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, fail(errors.New("no questions in output"))
	}
	return questions, nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64, bool:
		return fmt.Sprint(t)
	}
	return ""
}
