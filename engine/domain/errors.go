package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Sentinel errors. Every error surfaced by the engine wraps exactly one of them.
var (
	ErrNotFound            = errors.New("not found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrInvalidInput        = errors.New("invalid input")
	ErrParseFailure        = errors.New("parse failure")

	ErrEmptyQuestion     = fmt.Errorf("%w: question is empty", ErrInvalidInput)
	ErrQuestionTooLong   = fmt.Errorf("%w: question too long", ErrInvalidInput)
	ErrQueryInjection    = fmt.Errorf("%w: question contains suspicious content", ErrInvalidInput)
	ErrEmptyDocumentID   = fmt.Errorf("%w: document id is empty", ErrInvalidInput)
	ErrInvalidDocument   = fmt.Errorf("%w: malformed document id", ErrInvalidInput)
	ErrInvalidOutline    = fmt.Errorf("%w: outline", ErrInvalidInput)
	ErrEmptyChapter      = fmt.Errorf("%w: chapter is empty", ErrInvalidInput)
	ErrNoExtractableText = fmt.Errorf("%w: document has no extractable text", ErrInvalidInput)
)

// ValidationError wraps a sentinel with context.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// NotFoundError reports a missing document, collection or chapter. Available
// holds a sample of what does exist, for diagnosis.
type NotFoundError struct {
	Kind      string
	Key       string
	Available []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Kind, e.Key)
	if len(e.Available) > 0 {
		msg += fmt.Sprintf(" (available: %s)", strings.Join(quoteAll(e.Available), ", "))
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound creates a NotFoundError.
func NewNotFound(kind, key string, available ...string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key, Available: available}
}

// UpstreamError reports a failed call to the embedding, generation, vector or
// cache service.
type UpstreamError struct {
	Service string
	Op      string
	Err     error
}

func (e *UpstreamError) Error() string {
	kind := "unavailable"
	if e.Timeout() {
		kind = "timed out"
	}
	return fmt.Sprintf("%s %s %s: %v", e.Service, e.Op, kind, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is matches ErrUpstreamUnavailable always and ErrUpstreamTimeout when the
// cause was a deadline.
func (e *UpstreamError) Is(target error) bool {
	switch target {
	case ErrUpstreamUnavailable:
		return true
	case ErrUpstreamTimeout:
		return e.Timeout()
	}
	return false
}

// Timeout reports whether the underlying failure was a timeout.
func (e *UpstreamError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// Upstream wraps err as an UpstreamError. Errors already classified as
// NotFound or InvalidInput pass through unchanged.
func Upstream(service, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Service: service, Op: op, Err: err}
}

// ParseError reports generator output that did not contain the expected
// structured payload. Input and Raw are kept for diagnosis.
type ParseError struct {
	What  string
	Input string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.What, e.Err)
}

func (e *ParseError) Unwrap() []error { return []error{ErrParseFailure, e.Err} }

func quoteAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}
