package service

import (
	"context"

	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// ClientService implements client registration and administration.
type ClientService struct {
	authority *auth.Authority
	logger    log.Logger
}

func NewClientService(authority *auth.Authority, logger log.Logger) *ClientService {
	return &ClientService{authority: authority, logger: componentLogger(logger, "client-service")}
}

// Register creates an unconfirmed client. The response carries the shared key so the caller
// can confirm what was stored.
func (s *ClientService) Register(ctx context.Context, spec types.ClientSpec) (*types.ClientView, error) {
	client, err := s.authority.AddClient(ctx, spec)
	if err != nil {
		return nil, err
	}
	return client.View(true), nil
}

// List returns every client. Admin only.
func (s *ClientService) List(ctx context.Context, caller *types.Identity) ([]*types.ClientView, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	clients, err := s.authority.ListClients(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.ClientView, 0, len(clients))
	for _, c := range clients {
		out = append(out, c.View(true))
	}
	return out, nil
}

// Get returns one client to an admin or to the client itself. Only admins see the shared key.
func (s *ClientService) Get(ctx context.Context, caller *types.Identity, name string) (*types.ClientView, error) {
	if err := requireIdentity(caller); err != nil {
		return nil, err
	}
	name = types.NormalizeClientName(name)
	if !caller.IsAdmin && caller.Name != name {
		return nil, types.NewForbiddenError("clients may only view themselves")
	}
	client, err := s.authority.GetClient(ctx, name)
	if err != nil {
		return nil, err
	}
	return client.View(caller.IsAdmin), nil
}

// Update applies a partial update. Admin only.
func (s *ClientService) Update(ctx context.Context, caller *types.Identity, name string, update types.ClientUpdate) (*types.ClientView, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	client, err := s.authority.UpdateClient(ctx, name, update)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Client changed by admin", log.Client(client.Name), log.Str("admin", caller.Name))
	return client.View(true), nil
}

// Delete removes a client. Admin only.
func (s *ClientService) Delete(ctx context.Context, caller *types.Identity, name string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	if types.NormalizeClientName(name) == caller.Name {
		return types.NewValidationError("admins cannot remove themselves")
	}
	return s.authority.RemoveClient(ctx, name)
}
