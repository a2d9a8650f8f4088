package rag

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

func groundedPrompt(question string, contexts []string, previewChars int) string {
	var b strings.Builder
	b.WriteString("You are a helpful study assistant for a school textbook. Use only the context below to answer the question at the end.\n")
	b.WriteString("If the context does not cover the question, say that the textbook does not contain enough information. Do not make up an answer.\n\n")
	for i, c := range contexts {
		fmt.Fprintf(&b, "Context %d: %s\n\n", i+1, preview(c, previewChars))
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer:", question)
	return b.String()
}

func fallbackPrompt(question string) string {
	return fmt.Sprintf("The student asked: %q. This topic was not found in the uploaded curriculum materials.\n"+
		"Please provide a brief and general educational explanation.", question)
}

func summaryPrompt(chapter, text string) string {
	return fmt.Sprintf(`You are an educational AI assistant.
Summarize the following chapter titled %q clearly for students.
Use engaging formatting such as bullet points and numbered lists.
Focus on the key ideas, main definitions and examples. Avoid repetition.

Text:
%s

Return the summary in this structured format:
- **Main Topic:**
- **Key Concepts:**
- **Important Ideas:**
- **Examples or Applications:**
- **Conclusion:**
`, chapter, text)
}

func quizPrompt(topic string, chunks []string, n int) string {
	return fmt.Sprintf(`You are a student-friendly quiz generator.

RULES:
- Use ONLY the textbook content below. Do not use outside knowledge.
- Each question must have exactly 4 options labeled A, B, C, D.
- Give the correct answer as both the letter and the full text (e.g. "B. Desert climate").
- Give a short hint and a 1-2 sentence explanation taken from the textbook.
- Skip a question if the content does not support it.

Topic: %s

Textbook content:
%s

Generate %d multiple-choice questions. Return strictly a JSON array like:
[
  {
    "question": "...",
    "options": ["A. ...", "B. ...", "C. ...", "D. ..."],
    "answer": "A. ...",
    "hint": "...",
    "explanation": "..."
  }
]
`, topic, strings.Join(chunks, "\n\n"), n)
}

// preview cuts s to at most n bytes on a rune boundary.
func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
