package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/rag"
)

type tutor interface {
	Ask(ctx context.Context, docID, question string) (rag.Answer, error)
	Summarize(ctx context.Context, docID, chapter string) (domain.ChapterSummary, error)
	GenerateQuiz(ctx context.Context, req rag.QuizRequest) (domain.Quiz, error)
}

type tools struct {
	tutor tutor
}

// newServer registers the tutor tools on an MCP server.
func newServer(name, version string, t tutor) *server.MCPServer {
	s := server.NewMCPServer(name, version, server.WithToolCapabilities(true))
	h := &tools{tutor: t}

	s.AddTool(mcp.NewTool("ask_textbook",
		mcp.WithDescription("Answer a question from a textbook's indexed content. Falls back to general knowledge when nothing relevant is found."),
		mcp.WithString("doc_id", mcp.Required(), mcp.Description("Textbook id")),
		mcp.WithString("question", mcp.Required(), mcp.Description("The student's question")),
	), h.ask)

	s.AddTool(mcp.NewTool("summarize_unit",
		mcp.WithDescription("Write a study summary of one unit or sub-chapter of a textbook."),
		mcp.WithString("doc_id", mcp.Required(), mcp.Description("Textbook id")),
		mcp.WithString("chapter", mcp.Required(), mcp.Description("Unit or sub-chapter title, e.g. \"Unit 2\"")),
	), h.summarize)

	s.AddTool(mcp.NewTool("generate_quiz",
		mcp.WithDescription("Generate multiple-choice questions on a topic from a textbook."),
		mcp.WithString("doc_id", mcp.Required(), mcp.Description("Textbook id")),
		mcp.WithString("topic", mcp.Description("Quiz topic; defaults to the unit title")),
		mcp.WithString("unit", mcp.Description("Restrict questions to this unit")),
		mcp.WithNumber("num_questions", mcp.Description(fmt.Sprintf("Number of questions (default %d)", rag.DefaultQuizQuestions))),
	), h.quiz)

	return s
}

func (h *tools) ask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := req.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError("doc_id parameter is required"), nil
	}
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("question parameter is required"), nil
	}
	ans, err := h.tutor.Ask(ctx, docID, question)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(ans.Text), nil
}

func (h *tools) summarize(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := req.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError("doc_id parameter is required"), nil
	}
	chapter, err := req.RequireString("chapter")
	if err != nil {
		return mcp.NewToolResultError("chapter parameter is required"), nil
	}
	sum, err := h.tutor.Summarize(ctx, docID, chapter)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(sum.Summary), nil
}

func (h *tools) quiz(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docID, err := req.RequireString("doc_id")
	if err != nil {
		return mcp.NewToolResultError("doc_id parameter is required"), nil
	}
	q, err := h.tutor.GenerateQuiz(ctx, rag.QuizRequest{
		DocID:        docID,
		Unit:         req.GetString("unit", ""),
		Topic:        req.GetString("topic", ""),
		NumQuestions: req.GetInt("num_questions", rag.DefaultQuizQuestions),
	})
	if err != nil {
		return toolError(err), nil
	}
	out, err := json.Marshal(q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal quiz: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError reports err to the client, listing known titles for an unknown
// chapter so the model can retry with one of them.
func toolError(err error) *mcp.CallToolResult {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) && len(nf.Available) > 0 {
		return mcp.NewToolResultError(fmt.Sprintf("%v; available: %s", err, strings.Join(nf.Available, "; ")))
	}
	return mcp.NewToolResultError(err.Error())
}
