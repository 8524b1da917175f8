package auth

import (
	"context"

	"github.com/mac-/configurine/pkg/types"
)

// ClientStore persists API clients. Lookups of unknown names return a types.NotFoundError and
// creating a taken name returns a types.ConflictError.
type ClientStore interface {
	GetClient(ctx context.Context, name string) (*types.Client, error)
	ListClients(ctx context.Context) ([]*types.Client, error)
	CreateClient(ctx context.Context, c *types.Client) error
	UpdateClient(ctx context.Context, c *types.Client) error
	DeleteClient(ctx context.Context, name string) error
}
