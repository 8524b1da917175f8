package auth

import (
	"context"

	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/mock"
)

var _ ClientStore = &MockClientStore{}

// MockClientStore is a testify mock of ClientStore.
type MockClientStore struct {
	mock.Mock
}

func (m *MockClientStore) GetClient(ctx context.Context, name string) (*types.Client, error) {
	args := m.Called(ctx, name)
	c, _ := args.Get(0).(*types.Client)
	return c, args.Error(1)
}

func (m *MockClientStore) ListClients(ctx context.Context) ([]*types.Client, error) {
	args := m.Called(ctx)
	cs, _ := args.Get(0).([]*types.Client)
	return cs, args.Error(1)
}

func (m *MockClientStore) CreateClient(ctx context.Context, c *types.Client) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockClientStore) UpdateClient(ctx context.Context, c *types.Client) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockClientStore) DeleteClient(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}
