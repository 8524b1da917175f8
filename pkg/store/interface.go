// Package store provides the document store behind configurine and its backends.
package store

import (
	"context"
	"errors"

	"github.com/mac-/configurine/pkg/types"
)

var (
	// ErrNotFound is returned when no resource exists under the key.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned by Create when the key is taken.
	ErrAlreadyExists = errors.New("resource already exists")
)

// Store is a keyed JSON document store. Resources are grouped by resource type; keys are
// unique within a type. Every operation connects lazily through the store's Connector, so
// calling Open first is optional.
type Store interface {
	// Open connects to the backend.
	Open(ctx context.Context) error

	// Close disconnects and releases resources.
	Close() error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// State reports the connection state.
	State() State

	// Create stores a new resource. It fails with ErrAlreadyExists if the key is taken.
	Create(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error

	// Get decodes the resource under key into resource, which must be a pointer.
	Get(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error

	// List decodes every resource of the type into resource, which must point to a slice.
	List(ctx context.Context, resourceType types.ResourceType, resource interface{}) error

	// Update replaces an existing resource. It fails with ErrNotFound if the key is absent.
	Update(ctx context.Context, resourceType types.ResourceType, key string, resource interface{}) error

	// Delete removes a resource. It fails with ErrNotFound if the key is absent.
	Delete(ctx context.Context, resourceType types.ResourceType, key string) error
}

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists reports whether err is or wraps ErrAlreadyExists.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
