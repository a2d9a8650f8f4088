// Package chunk splits extracted document text into bounded, unit-tagged
// segments ready for embedding.
package chunk

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/WessleyAI/wessley-tutor/engine/domain"
)

// Strategy selects how text is aligned to document structure.
type Strategy string

const (
	// StrategyAuto uses the outline when the document has one, headings otherwise.
	StrategyAuto Strategy = "auto"
	// StrategyOutline maps outline page ranges onto text lines.
	StrategyOutline Strategy = "outline"
	// StrategyHeading detects unit and sub-chapter headings in the text.
	StrategyHeading Strategy = "heading"
)

// ParseStrategy converts a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case "", StrategyAuto:
		return StrategyAuto, nil
	case StrategyOutline, StrategyHeading:
		return st, nil
	}
	return "", domain.NewValidationError("chunking.strategy", s, domain.ErrInvalidInput)
}

// Config bounds chunk sizes.
type Config struct {
	Strategy     Strategy
	MaxChars     int // outline mode: max bytes per chunk including the title prefix
	MaxWords     int // heading mode: sliding window size
	OverlapWords int // heading mode: words carried into the next window
	MinChars     int // heading mode: shorter rendered chunks are dropped
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:     StrategyAuto,
		MaxChars:     500,
		MaxWords:     300,
		OverlapWords: 50,
		MinChars:     30,
	}
}

// Validate rejects sizes the chunker cannot honor.
func (c Config) Validate() error {
	if _, err := ParseStrategy(string(c.Strategy)); err != nil {
		return err
	}
	if c.MaxChars < 16 {
		return domain.NewValidationError("chunking.max_chars", fmt.Sprint(c.MaxChars), domain.ErrInvalidInput)
	}
	if c.MaxWords < 1 {
		return domain.NewValidationError("chunking.max_words", fmt.Sprint(c.MaxWords), domain.ErrInvalidInput)
	}
	if c.OverlapWords < 0 || c.OverlapWords >= c.MaxWords {
		return domain.NewValidationError("chunking.overlap_words", fmt.Sprint(c.OverlapWords), domain.ErrInvalidInput)
	}
	if c.MinChars < 0 {
		return domain.NewValidationError("chunking.min_chars", fmt.Sprint(c.MinChars), domain.ErrInvalidInput)
	}
	return nil
}

// Chunker is stateless apart from its configuration and safe for concurrent use.
type Chunker struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Chunker.
func New(cfg Config, logger *slog.Logger) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{cfg: cfg, logger: logger}, nil
}

// Config returns the chunker's configuration.
func (c *Chunker) Config() Config { return c.cfg }

// Chunk splits raw text for doc. The result is deterministic for identical
// input and configuration; ordinals start at 1 and are contiguous per unit.
func (c *Chunker) Chunk(doc domain.Document, raw string) ([]domain.Chunk, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, domain.ErrNoExtractableText
	}

	strategy := c.cfg.Strategy
	if strategy == StrategyAuto {
		strategy = StrategyHeading
		if len(doc.Outline) > 0 {
			strategy = StrategyOutline
		}
	}

	var (
		chunks []domain.Chunk
		err    error
	)
	switch strategy {
	case StrategyOutline:
		chunks, err = c.byOutline(doc, raw)
	default:
		chunks = c.byHeading(doc, raw)
	}
	if err != nil {
		return nil, err
	}
	c.logger.Debug("chunked document", "doc_id", doc.ID, "strategy", string(strategy), "chunks", len(chunks))
	return chunks, nil
}

// numberUnits assigns 1-based ordinals per unit in slice order.
func numberUnits(chunks []domain.Chunk) {
	next := make(map[string]int)
	for i := range chunks {
		next[chunks[i].Unit]++
		chunks[i].Index = next[chunks[i].Unit]
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
