package chunk

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
)

// Heading lines longer than this are treated as prose.
const maxHeadingLen = 100

var (
	unitHeading = regexp.MustCompile(`(?i)^(unit|chapter|part)\s*(\d+)\b\s*[:.\-–]?\s*(.*)$`)
	subHeading  = regexp.MustCompile(`^\d+\.\d+\s+\S.*$`)
	tocLeader   = regexp.MustCompile(`(\s*(\.{2,}|…+)\s*\d*|\s{2,}\d+)$`)
)

type headingUnit struct {
	title string
	lines []string
}

// splitUnits groups lines under unit headings. Units sharing a label and
// number are merged, so a table of contents and the body land in the same
// unit. Text
// before the first heading goes to a unit named after the document.
func splitUnits(doc domain.Document, raw string) []*headingUnit {
	var (
		units   []*headingUnit
		byKey   = make(map[string]*headingUnit)
		current *headingUnit
	)
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) <= maxHeadingLen {
			if m := unitHeading.FindStringSubmatch(line); m != nil {
				n, _ := strconv.Atoi(m[2])
				key := strings.ToLower(m[1]) + " " + strconv.Itoa(n)
				if u, ok := byKey[key]; ok {
					current = u
					continue
				}
				title := strings.TrimSpace(tocLeader.ReplaceAllString(m[3], ""))
				label := strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:]) + " " + m[2]
				if title != "" {
					label += ": " + title
				}
				current = &headingUnit{title: label}
				byKey[key] = current
				units = append(units, current)
				continue
			}
		}
		if current == nil {
			title := strings.TrimSpace(doc.Title)
			if title == "" {
				title = "Introduction"
			}
			current = &headingUnit{title: title}
			units = append(units, current)
		}
		current.lines = append(current.lines, line)
	}
	return units
}

func (c *Chunker) byHeading(doc domain.Document, raw string) []domain.Chunk {
	var chunks []domain.Chunk
	for _, u := range splitUnits(doc, raw) {
		w := window{
			max:     c.cfg.MaxWords,
			overlap: c.cfg.OverlapWords,
			heading: u.title,
		}
		emit := func() {
			text, ok := w.flush()
			if !ok || len(text) < c.cfg.MinChars {
				return
			}
			chunks = append(chunks, domain.Chunk{DocID: doc.ID, Unit: u.title, SubChapter: w.sub, Text: text})
		}
		for _, line := range u.lines {
			if len(line) <= maxHeadingLen && subHeading.MatchString(line) {
				emit()
				w.reset(line)
				continue
			}
			for _, word := range strings.Fields(line) {
				if w.full() {
					emit()
					w.reseed()
				}
				w.add(word)
			}
		}
		emit()
	}
	numberUnits(chunks)
	return chunks
}

// window is a word-bounded sliding window. fresh counts words added since the
// last flush; a window holding only carried-over words is never emitted.
type window struct {
	max, overlap int
	heading, sub string
	words        []string
	fresh        int
}

func (w *window) full() bool { return len(w.words)+1 > w.max }

func (w *window) add(word string) {
	w.words = append(w.words, word)
	w.fresh++
}

// flush renders the window prefixed by the current heading.
func (w *window) flush() (string, bool) {
	if w.fresh == 0 {
		return "", false
	}
	w.fresh = 0
	return w.heading + "\n" + strings.Join(w.words, " "), true
}

// reseed keeps the last overlap words.
func (w *window) reseed() {
	keep := min(w.overlap, len(w.words))
	w.words = append([]string(nil), w.words[len(w.words)-keep:]...)
}

// reset clears the window at a sub-heading boundary.
func (w *window) reset(heading string) {
	w.words = nil
	w.fresh = 0
	w.heading = heading
	w.sub = heading
}
