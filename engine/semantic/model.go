package semantic

import (
	"regexp"
	"strings"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
	"github.com/google/uuid"
)

// Payload keys stored on every point.
const (
	KeyDocID      = "doc_id"
	KeyUnit       = "unit"
	KeyUnitNorm   = "unit_norm"
	KeySubChapter = "sub_chapter"
	KeySubNorm    = "sub_norm"
	KeyChunkIndex = "chunk_index"
	KeyPageStart  = "page_start"
	KeyPageEnd    = "page_end"
	KeyText       = "text"
)

// SearchResult represents a single vector search or scroll hit. Score is zero
// for scrolled points.
type SearchResult struct {
	ID    string       `json:"id"`
	Score float32      `json:"score"`
	Chunk domain.Chunk `json:"chunk"`
}

// VectorRecord represents a single vector to store in Qdrant.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Payload   map[string]any
}

// RecordFromChunk builds a point for c with a fresh random id, so re-indexing
// never overwrites points from an earlier run.
func RecordFromChunk(c domain.Chunk, embedding []float32) VectorRecord {
	payload := map[string]any{
		KeyDocID:      c.DocID,
		KeyUnit:       c.Unit,
		KeyUnitNorm:   domain.NormalizeTitle(c.Unit),
		KeyChunkIndex: c.Index,
		KeyText:       c.Text,
	}
	if c.SubChapter != "" {
		payload[KeySubChapter] = c.SubChapter
		payload[KeySubNorm] = domain.NormalizeTitle(c.SubChapter)
	}
	if c.Pages != nil {
		payload[KeyPageStart] = c.Pages.Start
		payload[KeyPageEnd] = c.Pages.End
	}
	return VectorRecord{ID: uuid.NewString(), Embedding: embedding, Payload: payload}
}

var (
	spaceRun = regexp.MustCompile(`\s+`)
	nonWord  = regexp.MustCompile(`[^\w]`)
)

// CollectionName derives the collection for a document from its title, grade
// and subject: whitespace becomes underscores, other non-word characters are
// dropped and the result is lower-cased.
func CollectionName(doc domain.Document) string {
	raw := doc.Title + "_" + doc.Grade + "_" + doc.Subject
	name := spaceRun.ReplaceAllString(raw, "_")
	name = strings.ToLower(nonWord.ReplaceAllString(name, ""))
	if strings.Trim(name, "_") == "" {
		return "doc_" + strings.ToLower(nonWord.ReplaceAllString(doc.ID, ""))
	}
	return name
}
