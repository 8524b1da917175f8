package store

import (
	"context"

	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/mock"
)

var _ Store = &MockStore{}

// MockStore is a testify mock of Store. For Get and List, a non-nil first return argument is
// copied into the caller's target through JSON.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Open(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStore) State() State {
	args := m.Called()
	return args.Get(0).(State)
}

func (m *MockStore) Get(ctx context.Context, resourceType types.ResourceType, key string, value interface{}) error {
	args := m.Called(ctx, resourceType, key, value)
	if src := args.Get(0); src != nil && value != nil {
		if err := UnmarshalResource(src, value); err != nil {
			return err
		}
	}
	return args.Error(1)
}

func (m *MockStore) List(ctx context.Context, resourceType types.ResourceType, value interface{}) error {
	args := m.Called(ctx, resourceType, value)
	if src := args.Get(0); src != nil && value != nil {
		if err := UnmarshalResource(src, value); err != nil {
			return err
		}
	}
	return args.Error(1)
}

func (m *MockStore) Create(ctx context.Context, resourceType types.ResourceType, key string, value interface{}) error {
	args := m.Called(ctx, resourceType, key, value)
	return args.Error(0)
}

func (m *MockStore) Update(ctx context.Context, resourceType types.ResourceType, key string, value interface{}) error {
	args := m.Called(ctx, resourceType, key, value)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, resourceType types.ResourceType, key string) error {
	args := m.Called(ctx, resourceType, key)
	return args.Error(0)
}
