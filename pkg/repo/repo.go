// Package repo defines a generic node repository and its Neo4j implementation.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no node matches the requested id.
var ErrNotFound = errors.New("repo: not found")

// Repository is a generic store of identified entities.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Save(ctx context.Context, entity T) (T, error)
	Patch(ctx context.Context, id ID, props map[string]any) error
	Delete(ctx context.Context, id ID) error
}

// ListOpts controls pagination and filtering for List operations. Filter
// entries are matched by property equality.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}
