package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFound("chapter", "unit 9", "unit 1 landforms", "unit 2 climate")
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected errors.Is(err, ErrNotFound)")
	}
	msg := err.Error()
	if !strings.Contains(msg, `"unit 9"`) || !strings.Contains(msg, `"unit 2 climate"`) {
		t.Errorf("message should carry key and sample titles: %s", msg)
	}
}

func TestUpstreamError_Classification(t *testing.T) {
	err := Upstream("embedding", "embed", errors.New("connection refused"))
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Error("expected ErrUpstreamUnavailable")
	}
	if errors.Is(err, ErrUpstreamTimeout) {
		t.Error("plain failure must not be a timeout")
	}

	timeout := Upstream("generation", "generate", fmt.Errorf("post: %w", context.DeadlineExceeded))
	if !errors.Is(timeout, ErrUpstreamTimeout) || !errors.Is(timeout, ErrUpstreamUnavailable) {
		t.Errorf("expected timeout classification, got %v", timeout)
	}
	if !strings.Contains(timeout.Error(), "timed out") {
		t.Errorf("unexpected message: %s", timeout.Error())
	}
}

func TestUpstream_PassesThroughClassified(t *testing.T) {
	nf := NewNotFound("collection", "x")
	if got := Upstream("vector", "search", nf); got != error(nf) {
		t.Errorf("NotFound should pass through, got %v", got)
	}
	if Upstream("vector", "search", nil) != nil {
		t.Error("nil should stay nil")
	}
	once := Upstream("vector", "search", errors.New("boom"))
	if twice := Upstream("cache", "get", once); twice != once {
		t.Error("already-classified error should not be re-wrapped")
	}
}

func TestParseError(t *testing.T) {
	cause := errors.New("no JSON array found")
	err := &ParseError{What: "quiz", Input: "prompt", Raw: "sorry", Err: cause}
	if !errors.Is(err, ErrParseFailure) || !errors.Is(err, cause) {
		t.Fatal("ParseError should match ErrParseFailure and its cause")
	}
}
