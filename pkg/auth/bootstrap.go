package auth

import (
	"context"
	"fmt"

	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

const maxBootstrapAttempts = 3

// BootstrapResult describes the outcome of EnsureAdmin. Client carries the new admin's keys
// only when Created is true.
type BootstrapResult struct {
	Created bool
	Name    string
	Client  *types.Client
}

// EnsureAdmin creates an admin client if the store has none. It runs at most once per
// Authority; later calls return the first result. When several servers bootstrap against the
// same store, the one that loses the create race finds the winner's admin on re-scan.
func (a *Authority) EnsureAdmin(ctx context.Context) (*BootstrapResult, error) {
	a.bootstrapOnce.Do(func() {
		a.bootstrapResult, a.bootstrapErr = a.ensureAdmin(ctx)
	})
	return a.bootstrapResult, a.bootstrapErr
}

func (a *Authority) ensureAdmin(ctx context.Context) (*BootstrapResult, error) {
	for attempt := 0; attempt < maxBootstrapAttempts; attempt++ {
		clients, err := a.clients.ListClients(ctx)
		if err != nil {
			return nil, err
		}

		taken := make(map[string]bool, len(clients))
		for _, c := range clients {
			if c.IsAdmin {
				a.logger.Debug("Admin client present, skipping bootstrap", log.Client(c.Name))
				return &BootstrapResult{Name: c.Name}, nil
			}
			taken[c.Name] = true
		}

		client, err := a.newAdmin(taken)
		if err != nil {
			return nil, err
		}
		err = a.clients.CreateClient(ctx, client)
		if types.IsConflictError(err) {
			a.logger.Debug("Bootstrap admin name taken concurrently, rescanning", log.Client(client.Name))
			continue
		} else if err != nil {
			return nil, err
		}

		a.logger.Warn("Created bootstrap admin client; these credentials are not shown again",
			log.Client(client.Name),
			log.Str("bootstrap_shared_key", client.SharedKey),
		)
		return &BootstrapResult{Created: true, Name: client.Name, Client: client}, nil
	}
	return nil, types.NewMisconfiguredError("admin bootstrap did not settle after %d attempts", maxBootstrapAttempts)
}

func (a *Authority) newAdmin(taken map[string]bool) (*types.Client, error) {
	name := a.adminName
	for taken[name] {
		suffix, err := crypto.RandomHex(2)
		if err != nil {
			return nil, err
		}
		name = fmt.Sprintf("%s-%s", a.adminName, suffix)
	}
	sharedKey, err := crypto.RandomHex(privateKeyBytes)
	if err != nil {
		return nil, err
	}
	privateKey, err := crypto.RandomHex(privateKeyBytes)
	if err != nil {
		return nil, err
	}
	email := a.adminEmail
	if email == "" {
		email = name + "@localhost"
	}
	return &types.Client{
		Name:        name,
		Email:       email,
		SharedKey:   sharedKey,
		PrivateKey:  privateKey,
		IsAdmin:     true,
		IsConfirmed: true,
	}, nil
}
