// Package domain defines the core document, outline and chunk types shared by
// the tutor engine, together with the error taxonomy and the input validation
// gate applied before any I/O.
package domain

import "time"

// PageRange is an inclusive 1-based page span.
type PageRange struct {
	Start int `json:"page_start"`
	End   int `json:"page_end"`
}

// SubChapter is a titled page span nested inside a unit.
type SubChapter struct {
	Title     string `json:"title"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
}

// Unit is a top-level outline entry.
type Unit struct {
	Title       string       `json:"title"`
	PageStart   int          `json:"page_start"`
	PageEnd     int          `json:"page_end"`
	SubChapters []SubChapter `json:"sub_chapters,omitempty"`
}

// Outline is the statically configured structure of a textbook.
type Outline []Unit

// LastPage returns the highest page number referenced by the outline.
func (o Outline) LastPage() int {
	last := 0
	for _, u := range o {
		if u.PageEnd > last {
			last = u.PageEnd
		}
		for _, s := range u.SubChapters {
			if s.PageEnd > last {
				last = s.PageEnd
			}
		}
	}
	return last
}

// Document is the read-only record of an ingested textbook.
type Document struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Grade    string  `json:"grade"`
	Subject  string  `json:"subject"`
	FilePath string  `json:"file_path"`
	Outline  Outline `json:"outline,omitempty"`

	Indexed   bool      `json:"indexed"`
	IndexedAt time.Time `json:"indexed_at,omitempty"`
	Points    int       `json:"points,omitempty"`
}

// Chunk is a bounded span of document text tagged with its structural position.
type Chunk struct {
	DocID      string     `json:"doc_id"`
	Unit       string     `json:"unit"`
	SubChapter string     `json:"sub_chapter,omitempty"`
	Index      int        `json:"chunk_index"` // 1-based, contiguous within Unit
	Pages      *PageRange `json:"pages,omitempty"`
	Text       string     `json:"text"`
}

// IndexInfo records a successful ingestion run.
type IndexInfo struct {
	Collection string
	Points     int
	At         time.Time
}

// ChapterSummary is a generated study summary of one unit or sub-chapter.
type ChapterSummary struct {
	DocID      string    `json:"doc_id"`
	Chapter    string    `json:"chapter"`
	Summary    string    `json:"summary"`
	ChunksUsed int       `json:"chunks_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// QuizQuestion is one multiple-choice question.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	Answer      string   `json:"answer"`
	Hint        string   `json:"hint"`
	Explanation string   `json:"explanation"`
}

// Quiz is a generated set of questions on a topic.
type Quiz struct {
	ID        string         `json:"id"`
	DocID     string         `json:"doc_id"`
	Unit      string         `json:"unit,omitempty"`
	Topic     string         `json:"topic"`
	Questions []QuizQuestion `json:"questions"`
	CreatedAt time.Time      `json:"created_at"`
}
