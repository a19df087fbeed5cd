// Package remote provides the per-entity-type CRUD client the sync engine
// pushes to and pulls from. The engine depends only on the Client contract;
// the HTTP implementation lives in http.go.
package remote

import (
	"context"
	"errors"
	"fmt"
)

// Client is the remote entity service for one entity type. T is the entity
// payload struct; the server assigns ids and timestamps on create.
type Client[T any] interface {
	// Create pushes a new entity. The idempotency key is stable across
	// retries of the same logical creation so the server can recognize a
	// resent request instead of re-applying it.
	Create(ctx context.Context, entity T, idempotencyKey string) (T, error)

	// Update pushes field changes for an entity the server already has.
	Update(ctx context.Context, id string, entity T) (T, error)

	// Delete removes the entity. Returns ErrNotFound when the server has
	// no such record, which callers treat as the goal state.
	Delete(ctx context.Context, id string) error

	// List fetches the full remote collection.
	List(ctx context.Context) ([]T, error)
}

// Sentinel errors the sync engine branches on. Everything else coming out of
// a Client is treated as a transient failure and retried.
var (
	// ErrConflict means the server recognized the request as a duplicate
	// of work already done, via the idempotency key or its own uniqueness
	// rules.
	ErrConflict = errors.New("remote: conflict")

	// ErrNotFound means the server has no record with the given id.
	ErrNotFound = errors.New("remote: not found")
)

// StatusError carries an unexpected HTTP status so diagnostics keep the
// code without the engine needing to parse messages.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: unexpected status %d: %s", e.Code, e.Body)
}

// IsConflict reports whether err is a conflict/duplicate response.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound reports whether err is a not-found response.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
