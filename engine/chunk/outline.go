package chunk

import (
	"strings"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
)

type section struct {
	unit, sub string
	pages     domain.PageRange
}

func (c *Chunker) byOutline(doc domain.Document, raw string) ([]domain.Chunk, error) {
	if len(doc.Outline) == 0 {
		return nil, domain.NewValidationError("outline", doc.ID, domain.ErrInvalidOutline)
	}
	if err := domain.ValidateOutline(doc.Outline); err != nil {
		return nil, err
	}

	lines := strings.Split(raw, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	lastPage := doc.Outline.LastPage()
	perPage := (len(lines) + lastPage - 1) / lastPage
	if perPage < 1 {
		perPage = 1
	}

	var sections []section
	for _, u := range doc.Outline {
		if len(u.SubChapters) == 0 {
			sections = append(sections, section{unit: u.Title, pages: domain.PageRange{Start: u.PageStart, End: u.PageEnd}})
			continue
		}
		for _, s := range u.SubChapters {
			sections = append(sections, section{unit: u.Title, sub: s.Title, pages: domain.PageRange{Start: s.PageStart, End: s.PageEnd}})
		}
	}

	var chunks []domain.Chunk
	for _, sec := range sections {
		from := (sec.pages.Start - 1) * perPage
		to := min(sec.pages.End*perPage, len(lines))
		if from >= to {
			continue
		}
		body := strings.Join(lines[from:to], " ")

		prefix := sec.unit
		if sec.sub != "" {
			prefix += " > " + sec.sub
		}
		if len(prefix)+1 > c.cfg.MaxChars/2 {
			prefix = truncate(prefix, c.cfg.MaxChars/2-1)
		}
		budget := c.cfg.MaxChars - len(prefix) - 1

		for _, seg := range splitFixed(body, budget) {
			pages := sec.pages
			chunks = append(chunks, domain.Chunk{
				DocID:      doc.ID,
				Unit:       sec.unit,
				SubChapter: sec.sub,
				Pages:      &pages,
				Text:       prefix + "\n" + seg,
			})
		}
	}
	numberUnits(chunks)
	return chunks, nil
}

// splitFixed cuts s into consecutive pieces of at most n bytes with no
// overlap, dropping pieces that are blank after trimming. n must exceed
// utf8.UTFMax.
func splitFixed(s string, n int) []string {
	var out []string
	for len(s) > 0 {
		piece := truncate(s, n)
		s = s[len(piece):]
		if t := strings.TrimSpace(piece); t != "" {
			out = append(out, t)
		}
	}
	return out
}
