// Package cache stores generated answers keyed by document and normalized
// question.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultTTL is how long an answer stays valid.
const DefaultTTL = 24 * time.Hour

// Store is a key-value store with expiry. Get reports ok=false for absent or
// expired keys. A single Set is atomic.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Entry is a cached answer.
type Entry struct {
	Answer   string   `json:"answer"`
	Contexts []string `json:"contexts"`
}

type envelope struct {
	DocID     string    `json:"doc_id"`
	Question  string    `json:"question"`
	Entry     Entry     `json:"entry"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Cache maps (document, question) pairs to answers.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// New creates a Cache over store. A non-positive ttl uses DefaultTTL.
func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl, now: time.Now}
}

// TTL returns the entry lifetime.
func (c *Cache) TTL() time.Duration { return c.ttl }

// NormalizeQuestion trims and lower-cases a question.
func NormalizeQuestion(q string) string {
	return strings.ToLower(strings.TrimSpace(q))
}

// Key derives the store key for a document and question. The document id is
// part of the hash so entries never cross documents.
func Key(docID, question string) string {
	sum := sha256.Sum256([]byte(docID + "\n" + NormalizeQuestion(question)))
	return "chat." + hex.EncodeToString(sum[:])
}

// Get returns the cached answer, if any. Entries past their expiry or
// belonging to a different document or question are treated as absent.
func (c *Cache) Get(ctx context.Context, docID, question string) (Entry, bool, error) {
	raw, ok, err := c.store.Get(ctx, Key(docID, question))
	if err != nil || !ok {
		return Entry{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Entry{}, false, fmt.Errorf("cache: decode entry: %w", err)
	}
	if env.DocID != docID || env.Question != NormalizeQuestion(question) || !c.now().Before(env.ExpiresAt) {
		return Entry{}, false, nil
	}
	return env.Entry, true, nil
}

// Set stores an answer for the cache's TTL.
func (c *Cache) Set(ctx context.Context, docID, question string, e Entry) error {
	env := envelope{
		DocID:     docID,
		Question:  NormalizeQuestion(question),
		Entry:     e,
		ExpiresAt: c.now().Add(c.ttl),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cache: encode entry: %w", err)
	}
	return c.store.Set(ctx, Key(docID, question), raw, c.ttl)
}
