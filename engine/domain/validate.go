package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Injection patterns: template and NoSQL operator fragments that never belong
// in a student question.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\$\{.*\}`),
	regexp.MustCompile(`(?i)\{\s*"\$[a-z]+"\s*:`),
}

// MaxQuestionLength bounds a question in runes.
const MaxQuestionLength = 2000

// ValidateQuestion rejects empty, oversized or suspicious questions.
func ValidateQuestion(question string) error {
	text := strings.TrimSpace(question)
	if text == "" {
		return NewValidationError("question", question, ErrEmptyQuestion)
	}
	if utf8.RuneCountInString(text) > MaxQuestionLength {
		return NewValidationError("question", text[:64]+"...", ErrQuestionTooLong)
	}
	for _, pat := range injectionPatterns {
		if pat.MatchString(text) {
			return NewValidationError("question", text, ErrQueryInjection)
		}
	}
	return nil
}

// ValidateDocumentID rejects empty ids and ids containing whitespace or
// control characters.
func ValidateDocumentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return NewValidationError("doc_id", id, ErrEmptyDocumentID)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return NewValidationError("doc_id", id, ErrInvalidDocument)
		}
	}
	return nil
}

// ValidateOutline checks page ranges: every range is 1-based and ordered, and
// every sub-chapter lies within its unit.
func ValidateOutline(o Outline) error {
	for i, u := range o {
		if strings.TrimSpace(u.Title) == "" {
			return NewValidationError(fmt.Sprintf("outline[%d].title", i), u.Title, ErrInvalidOutline)
		}
		if u.PageStart < 1 || u.PageEnd < u.PageStart {
			return NewValidationError(fmt.Sprintf("outline[%d].pages", i), fmt.Sprintf("%d-%d", u.PageStart, u.PageEnd), ErrInvalidOutline)
		}
		for j, s := range u.SubChapters {
			field := fmt.Sprintf("outline[%d].sub_chapters[%d]", i, j)
			if strings.TrimSpace(s.Title) == "" {
				return NewValidationError(field+".title", s.Title, ErrInvalidOutline)
			}
			if s.PageStart < u.PageStart || s.PageEnd < s.PageStart || s.PageEnd > u.PageEnd {
				return NewValidationError(field+".pages", fmt.Sprintf("%d-%d", s.PageStart, s.PageEnd), ErrInvalidOutline)
			}
		}
	}
	return nil
}
