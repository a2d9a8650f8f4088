package retrieval

import (
	"cmp"
	"context"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/WessleyAI/wessley-tutor/engine/semantic"
)

// sampleTitles bounds the titles listed in a not-found error.
const sampleTitles = 10

var (
	unitRef = regexp.MustCompile(`(?i)\b(unit|chapter|lesson|part)\s*[-#:]?\s*(\d+)\b`)
	subRef  = regexp.MustCompile(`\b(\d+\.\d+)\b`)
)

// Words that label a title rather than name it.
var stopwords = map[string]bool{
	"unit": true, "chapter": true, "lesson": true, "part": true, "section": true,
	"the": true, "of": true, "a": true, "an": true, "and": true, "in": true, "on": true,
}

// DetectUnitRef finds a structural reference such as "unit 3", "Chapter 2"
// or "2.1" in a question. Unit references win over sub-chapter numbers.
func DetectUnitRef(question string) (string, bool) {
	if m := unitRef.FindStringSubmatch(question); m != nil {
		return strings.ToLower(m[1]) + " " + m[2], true
	}
	if m := subRef.FindStringSubmatch(question); m != nil {
		return m[1], true
	}
	return "", false
}

// Match is a stored title resolved from an imprecise reference. Key is the
// payload key the title lives under.
type Match struct {
	Key   string
	Title string
}

// Titles scans up to ScanLimit points of a document and returns the distinct
// normalized unit and sub-chapter titles in first-seen order.
func (e *Engine) Titles(ctx context.Context, coll, docID string) ([]Match, error) {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()
	points, err := e.store.Scroll(sctx, coll, map[string]string{semantic.KeyDocID: docID}, e.cfg.ScanLimit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var titles []Match
	add := func(key, raw string) {
		t := domain.NormalizeTitle(raw)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		titles = append(titles, Match{Key: key, Title: t})
	}
	for _, p := range points {
		add(semantic.KeyUnitNorm, p.Chunk.Unit)
		add(semantic.KeySubNorm, p.Chunk.SubChapter)
	}
	return titles, nil
}

// Resolve maps ref onto a stored title of the document. It fails with a
// domain.NotFoundError listing a sample of the available titles.
func (e *Engine) Resolve(ctx context.Context, coll, docID, ref string) (Match, error) {
	titles, err := e.Titles(ctx, coll, docID)
	if err != nil {
		return Match{}, err
	}
	names := make([]string, len(titles))
	for i, t := range titles {
		names[i] = t.Title
	}
	if i, ok := MatchTitle(ref, names); ok {
		e.logger.Debug("resolved title", "doc_id", docID, "ref", ref, "title", titles[i].Title)
		return titles[i], nil
	}
	return Match{}, domain.NewNotFound("chapter", ref, names[:min(sampleTitles, len(names))]...)
}

// MatchTitle picks the candidate that best matches input, trying in order:
// exact match, whole-word phrase containment either way, plain substring
// either way, then token overlap with at least half of the input's significant
// words present. Numbers in the input must appear in the candidate for the
// last two steps, so "unit 1" never resolves to "unit 10".
func MatchTitle(input string, candidates []string) (int, bool) {
	in := canon(input)
	if in == "" {
		return 0, false
	}
	forms := make([]string, len(candidates))
	for i, c := range candidates {
		forms[i] = canon(c)
	}

	for i, f := range forms {
		if f == in {
			return i, true
		}
	}
	for i, f := range forms {
		if f != "" && (containsPhrase(f, in) || containsPhrase(in, f)) {
			return i, true
		}
	}

	inTokens := strings.Fields(in)
	for i, f := range forms {
		if f != "" && (strings.Contains(f, in) || strings.Contains(in, f)) && hasNumbers(inTokens, f) {
			return i, true
		}
	}

	sig := significant(inTokens)
	best, bestCount := -1, 0
	for i, f := range forms {
		if !hasNumbers(inTokens, f) {
			continue
		}
		have := make(map[string]bool)
		for _, t := range strings.Fields(f) {
			have[t] = true
		}
		count := 0
		for _, t := range sig {
			if have[t] {
				count++
			}
		}
		if count > 0 && count*2 >= len(sig) && count > bestCount {
			best, bestCount = i, count
		}
	}
	return best, best >= 0
}

// canon normalizes s and reduces it to space-separated tokens of letters,
// digits and inner dots.
func canon(s string) string {
	fields := strings.FieldsFunc(domain.NormalizeTitle(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "."); f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

func containsPhrase(s, phrase string) bool {
	return strings.Contains(" "+s+" ", " "+phrase+" ")
}

func significant(tokens []string) []string {
	var out []string
	for _, t := range tokens {
		if !stopwords[t] {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return tokens
	}
	return out
}

func hasNumbers(tokens []string, candidate string) bool {
	have := strings.Fields(candidate)
	for _, t := range tokens {
		if isNumber(t) && !slices.Contains(have, t) {
			return false
		}
	}
	return true
}

func isNumber(t string) bool {
	return strings.IndexFunc(t, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' }) < 0
}

// FetchUnit returns every chunk of the named unit or sub-chapter ordered by
// ordinal. An exact filter on the normalized title is tried first; when it
// returns nothing the name is resolved against stored titles and fetched
// again.
func (e *Engine) FetchUnit(ctx context.Context, docID, chapter string) (string, []domain.Chunk, error) {
	title := domain.NormalizeTitle(chapter)
	if title == "" {
		return "", nil, domain.NewValidationError("chapter", chapter, domain.ErrEmptyChapter)
	}
	doc, coll, err := e.Open(ctx, docID)
	if err != nil {
		return "", nil, err
	}

	points, err := e.scrollTitle(ctx, coll, doc.ID, semantic.KeyUnitNorm, title)
	if err != nil {
		return "", nil, err
	}
	if len(points) == 0 {
		m, err := e.Resolve(ctx, coll, doc.ID, chapter)
		if err != nil {
			return "", nil, err
		}
		title = m.Title
		if points, err = e.scrollTitle(ctx, coll, doc.ID, m.Key, m.Title); err != nil {
			return "", nil, err
		}
		if len(points) == 0 {
			return "", nil, domain.NewNotFound("chapter", chapter, m.Title)
		}
	}

	chunks := make([]domain.Chunk, len(points))
	for i, p := range points {
		chunks[i] = p.Chunk
	}
	slices.SortStableFunc(chunks, func(a, b domain.Chunk) int { return cmp.Compare(a.Index, b.Index) })
	return title, chunks, nil
}

func (e *Engine) scrollTitle(ctx context.Context, coll, docID, key, title string) ([]semantic.SearchResult, error) {
	sctx, cancel := context.WithTimeout(ctx, e.cfg.SearchTimeout)
	defer cancel()
	return e.store.Scroll(sctx, coll, map[string]string{semantic.KeyDocID: docID, key: title}, e.cfg.FetchLimit)
}
