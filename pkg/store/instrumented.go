package store

import (
	"context"
	"time"

	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// OpRecorder receives the outcome of every store operation.
type OpRecorder interface {
	ObserveStoreOp(op string, resourceType types.ResourceType, duration time.Duration, err error)
}

// InstrumentedStore wraps a Store, reporting each operation to an OpRecorder and logging failures
// other than not-found and already-exists at debug level.
type InstrumentedStore struct {
	Store
	recorder OpRecorder
	logger   log.Logger
}

// NewInstrumentedStore wraps s.
func NewInstrumentedStore(s Store, recorder OpRecorder, logger log.Logger) *InstrumentedStore {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &InstrumentedStore{Store: s, recorder: recorder, logger: logger.WithComponent("store")}
}

func (s *InstrumentedStore) observe(op string, rt types.ResourceType, start time.Time, err error) {
	if s.recorder != nil {
		s.recorder.ObserveStoreOp(op, rt, time.Since(start), err)
	}
	if err != nil && !IsNotFound(err) && !IsAlreadyExists(err) {
		s.logger.Debug("Store operation failed", log.Op(op), log.Str("resource_type", string(rt)), log.Err(err))
	}
}

func (s *InstrumentedStore) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { s.observe("ping", "", start, err) }(time.Now())
	return s.Store.Ping(ctx)
}

func (s *InstrumentedStore) Create(ctx context.Context, rt types.ResourceType, key string, resource interface{}) (err error) {
	defer func(start time.Time) { s.observe("create", rt, start, err) }(time.Now())
	return s.Store.Create(ctx, rt, key, resource)
}

func (s *InstrumentedStore) Get(ctx context.Context, rt types.ResourceType, key string, resource interface{}) (err error) {
	defer func(start time.Time) { s.observe("get", rt, start, err) }(time.Now())
	return s.Store.Get(ctx, rt, key, resource)
}

func (s *InstrumentedStore) List(ctx context.Context, rt types.ResourceType, resource interface{}) (err error) {
	defer func(start time.Time) { s.observe("list", rt, start, err) }(time.Now())
	return s.Store.List(ctx, rt, resource)
}

func (s *InstrumentedStore) Update(ctx context.Context, rt types.ResourceType, key string, resource interface{}) (err error) {
	defer func(start time.Time) { s.observe("update", rt, start, err) }(time.Now())
	return s.Store.Update(ctx, rt, key, resource)
}

func (s *InstrumentedStore) Delete(ctx context.Context, rt types.ResourceType, key string) (err error) {
	defer func(start time.Time) { s.observe("delete", rt, start, err) }(time.Now())
	return s.Store.Delete(ctx, rt, key)
}
