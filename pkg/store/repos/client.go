package repos

import (
	"context"
	"fmt"

	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/types"
)

// ClientRepo stores API clients keyed by name. With a cipher configured, the shared and private
// keys are encrypted at rest.
type ClientRepo struct {
	base *BaseRepo[types.Client]
	opts repoOptions
}

func NewClientRepo(core store.Store, opts ...Option) *ClientRepo {
	return &ClientRepo{
		base: NewBaseRepo[types.Client](core, types.ResourceTypeClient, "client"),
		opts: buildOptions(opts),
	}
}

// CreateClient stamps and stores a new client.
func (r *ClientRepo) CreateClient(ctx context.Context, c *types.Client) error {
	now := r.opts.now()
	c.Created = now
	c.Modified = now
	rec, err := r.seal(c)
	if err != nil {
		return err
	}
	return r.base.Create(ctx, c.Name, rec)
}

// GetClient returns the client with the given name.
func (r *ClientRepo) GetClient(ctx context.Context, name string) (*types.Client, error) {
	if types.ValidateClientName(name) != nil {
		return nil, types.NewNotFoundError("client", name)
	}
	rec, err := r.base.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return r.open(rec)
}

// UpdateClient replaces a client, keeping its created stamp.
func (r *ClientRepo) UpdateClient(ctx context.Context, c *types.Client) error {
	cur, err := r.base.Get(ctx, c.Name)
	if err != nil {
		return err
	}
	c.Created = cur.Created
	c.Modified = r.opts.now()
	rec, err := r.seal(c)
	if err != nil {
		return err
	}
	return r.base.Update(ctx, c.Name, rec)
}

// DeleteClient removes a client.
func (r *ClientRepo) DeleteClient(ctx context.Context, name string) error {
	if types.ValidateClientName(name) != nil {
		return types.NewNotFoundError("client", name)
	}
	return r.base.Delete(ctx, name)
}

// ListClients returns every client ordered by name.
func (r *ClientRepo) ListClients(ctx context.Context) ([]*types.Client, error) {
	recs, err := r.base.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Client, 0, len(recs))
	for _, rec := range recs {
		c, err := r.open(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func keyAAD(name, field string) string {
	return fmt.Sprintf("clients|%s|%s", name, field)
}

func (r *ClientRepo) seal(c *types.Client) (*types.Client, error) {
	rec := *c
	if r.opts.cipher == nil {
		return &rec, nil
	}
	var err error
	if rec.SharedKey, err = r.opts.cipher.EncryptString(c.SharedKey, keyAAD(c.Name, "shared_key")); err != nil {
		return nil, fmt.Errorf("failed to encrypt shared key: %w", err)
	}
	if rec.PrivateKey, err = r.opts.cipher.EncryptString(c.PrivateKey, keyAAD(c.Name, "private_key")); err != nil {
		return nil, fmt.Errorf("failed to encrypt private key: %w", err)
	}
	return &rec, nil
}

// open decrypts the stored keys. Plaintext keys written before encryption was enabled pass
// through unchanged.
func (r *ClientRepo) open(rec *types.Client) (*types.Client, error) {
	if r.opts.cipher == nil {
		return rec, nil
	}
	var err error
	if rec.SharedKey, err = r.opts.cipher.DecryptString(rec.SharedKey, keyAAD(rec.Name, "shared_key")); err != nil {
		return nil, types.NewMisconfiguredError("cannot decrypt keys of client %q: %v", rec.Name, err)
	}
	if rec.PrivateKey, err = r.opts.cipher.DecryptString(rec.PrivateKey, keyAAD(rec.Name, "private_key")); err != nil {
		return nil, types.NewMisconfiguredError("cannot decrypt keys of client %q: %v", rec.Name, err)
	}
	return rec, nil
}
