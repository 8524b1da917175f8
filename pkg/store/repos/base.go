// Package repos provides typed repositories over the core store.
package repos

import (
	"context"
	"time"

	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/types"
)

// BaseRepo provides common CRUD over the core store for a specific resource type.
// T is the stored document struct. Store sentinels are translated into the typed errors of
// package types.
type BaseRepo[T any] struct {
	core         store.Store
	resourceType types.ResourceType
	resourceName string
}

func NewBaseRepo[T any](core store.Store, rt types.ResourceType, resourceName string) *BaseRepo[T] {
	return &BaseRepo[T]{core: core, resourceType: rt, resourceName: resourceName}
}

func (r *BaseRepo[T]) Create(ctx context.Context, key string, obj *T) error {
	return r.mapErr("create", key, r.core.Create(ctx, r.resourceType, key, obj))
}

func (r *BaseRepo[T]) Get(ctx context.Context, key string) (*T, error) {
	var out T
	if err := r.core.Get(ctx, r.resourceType, key, &out); err != nil {
		return nil, r.mapErr("get", key, err)
	}
	return &out, nil
}

func (r *BaseRepo[T]) Update(ctx context.Context, key string, obj *T) error {
	return r.mapErr("update", key, r.core.Update(ctx, r.resourceType, key, obj))
}

func (r *BaseRepo[T]) Delete(ctx context.Context, key string) error {
	return r.mapErr("delete", key, r.core.Delete(ctx, r.resourceType, key))
}

// List returns every stored document of the type.
func (r *BaseRepo[T]) List(ctx context.Context) ([]*T, error) {
	var items []T
	if err := r.core.List(ctx, r.resourceType, &items); err != nil {
		return nil, r.mapErr("list", "", err)
	}
	out := make([]*T, 0, len(items))
	for i := range items {
		item := items[i]
		out = append(out, &item)
	}
	return out, nil
}

func (r *BaseRepo[T]) Core() store.Store { return r.core }

func (r *BaseRepo[T]) mapErr(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case store.IsNotFound(err):
		return types.NewNotFoundError(r.resourceName, key)
	case store.IsAlreadyExists(err):
		return types.NewDuplicateError("%s %q already exists", r.resourceName, key)
	default:
		return types.NewStoreError(op+" "+string(r.resourceType), err)
	}
}

type repoOptions struct {
	cipher *crypto.AEADCipher
	clock  func() time.Time
}

// Option configures a repository.
type Option func(*repoOptions)

// WithCipher encrypts sensitive fields at rest with the given cipher.
func WithCipher(c *crypto.AEADCipher) Option {
	return func(o *repoOptions) { o.cipher = c }
}

// WithClock overrides the clock used for created and modified stamps.
func WithClock(clock func() time.Time) Option {
	return func(o *repoOptions) { o.clock = clock }
}

func buildOptions(opts []Option) repoOptions {
	o := repoOptions{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o repoOptions) now() time.Time {
	return o.clock().UTC()
}
