package rag

import (
	"context"
	"strings"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
)

const emptySummary = "No summary was generated by the model."

// Summarize writes a study summary of one unit or sub-chapter. The chapter
// name is matched exactly first and fuzzily against stored titles second.
// Generation failures are errors here; saving the summary is best-effort.
func (s *Service) Summarize(ctx context.Context, docID, chapter string) (domain.ChapterSummary, error) {
	if err := domain.ValidateDocumentID(docID); err != nil {
		return domain.ChapterSummary{}, err
	}
	title, chunks, err := s.retriever.FetchUnit(ctx, docID, chapter)
	if err != nil {
		return domain.ChapterSummary{}, err
	}
	log := s.logger.With("doc_id", docID, "chapter", chapter, "matched", title)
	log.Info("summarizing", "chunks", len(chunks))

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if t := strings.TrimSpace(c.Text); t != "" {
			texts = append(texts, t)
		}
	}
	text := preview(strings.Join(texts, "\n\n"), s.cfg.SummaryMaxChars)

	out, err := s.generate(ctx, summaryPrompt(chapter, text), s.cfg.SummaryMaxTokens)
	if err != nil {
		return domain.ChapterSummary{}, err
	}
	if out == "" {
		log.Warn("generator returned an empty summary")
		out = emptySummary
	}

	sum := domain.ChapterSummary{
		DocID:      docID,
		Chapter:    chapter,
		Summary:    out,
		ChunksUsed: len(chunks),
		CreatedAt:  s.now().UTC(),
	}
	if s.lib != nil {
		if err := s.lib.SaveSummary(context.WithoutCancel(ctx), sum); err != nil {
			log.Warn("saving summary failed", "err", err)
		}
	}
	return sum, nil
}
