package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/rag"
)

type mockTutor struct {
	err     error
	gotQuiz rag.QuizRequest
}

func (m *mockTutor) Ask(_ context.Context, docID, question string) (rag.Answer, error) {
	return rag.Answer{Source: rag.SourceRAG, Text: docID + ": " + question}, m.err
}

func (m *mockTutor) Summarize(_ context.Context, _, chapter string) (domain.ChapterSummary, error) {
	return domain.ChapterSummary{Chapter: chapter, Summary: "Summary of " + chapter}, m.err
}

func (m *mockTutor) GenerateQuiz(_ context.Context, req rag.QuizRequest) (domain.Quiz, error) {
	m.gotQuiz = req
	return domain.Quiz{ID: "quiz-1", Topic: req.Topic, Questions: []domain.QuizQuestion{{Question: "Q?"}}}, m.err
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T", res.Content[0])
	}
	return tc.Text
}

func TestAsk(t *testing.T) {
	h := &tools{tutor: &mockTutor{}}
	res, err := h.ask(context.Background(), call(map[string]any{"doc_id": "geo7", "question": "What is a plateau?"}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	if got := resultText(t, res); got != "geo7: What is a plateau?" {
		t.Fatalf("text = %q", got)
	}
}

func TestAsk_MissingArguments(t *testing.T) {
	h := &tools{tutor: &mockTutor{}}
	for _, args := range []map[string]any{
		{"question": "q"},
		{"doc_id": "geo7"},
	} {
		res, err := h.ask(context.Background(), call(args))
		if err != nil {
			t.Fatal(err)
		}
		if !res.IsError {
			t.Errorf("args %v: expected tool error", args)
		}
	}
}

func TestSummarize_UnknownChapterListsTitles(t *testing.T) {
	h := &tools{tutor: &mockTutor{err: domain.NewNotFound("chapter", "Unit 9", "unit 1 landforms", "unit 2 climate")}}
	res, err := h.summarize(context.Background(), call(map[string]any{"doc_id": "geo7", "chapter": "Unit 9"}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Fatal("expected tool error")
	}
	if got := resultText(t, res); !strings.Contains(got, "available: unit 1 landforms; unit 2 climate") {
		t.Fatalf("text = %q", got)
	}
}

func TestSummarize(t *testing.T) {
	h := &tools{tutor: &mockTutor{}}
	res, err := h.summarize(context.Background(), call(map[string]any{"doc_id": "geo7", "chapter": "Unit 2"}))
	if err != nil {
		t.Fatal(err)
	}
	if got := resultText(t, res); got != "Summary of Unit 2" {
		t.Fatalf("text = %q", got)
	}
}

func TestQuiz(t *testing.T) {
	m := &mockTutor{}
	h := &tools{tutor: m}
	res, err := h.quiz(context.Background(), call(map[string]any{"doc_id": "geo7", "topic": "rainfall", "num_questions": float64(3)}))
	if err != nil {
		t.Fatal(err)
	}
	want := rag.QuizRequest{DocID: "geo7", Topic: "rainfall", NumQuestions: 3}
	if m.gotQuiz != want {
		t.Fatalf("request = %+v", m.gotQuiz)
	}
	var q domain.Quiz
	if err := json.Unmarshal([]byte(resultText(t, res)), &q); err != nil {
		t.Fatal(err)
	}
	if q.ID != "quiz-1" || len(q.Questions) != 1 {
		t.Fatalf("quiz = %+v", q)
	}
}

func TestQuiz_DefaultsQuestionCount(t *testing.T) {
	m := &mockTutor{}
	h := &tools{tutor: m}
	if _, err := h.quiz(context.Background(), call(map[string]any{"doc_id": "geo7", "unit": "Unit 1"})); err != nil {
		t.Fatal(err)
	}
	if m.gotQuiz.NumQuestions != rag.DefaultQuizQuestions || m.gotQuiz.Unit != "Unit 1" {
		t.Fatalf("request = %+v", m.gotQuiz)
	}
}

func TestQuiz_UpstreamError(t *testing.T) {
	h := &tools{tutor: &mockTutor{err: domain.Upstream("generation", "generate", errors.New("refused"))}}
	res, err := h.quiz(context.Background(), call(map[string]any{"doc_id": "geo7", "topic": "x"}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError || !strings.Contains(resultText(t, res), "refused") {
		t.Fatalf("result = %+v", res)
	}
}

func TestNewServer(t *testing.T) {
	if s := newServer(serverName, serverVersion, &mockTutor{}); s == nil {
		t.Fatal("newServer returned nil")
	}
}
