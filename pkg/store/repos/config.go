package repos

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/types"
)

// storedConfig is the at-rest form of a config entry. With a cipher configured, the value
// of a sensitive entry is replaced by its encrypted JSON encoding.
type storedConfig struct {
	types.ConfigEntry
	Encrypted bool `json:"encrypted,omitempty"`
}

// ConfigRepo stores config entries keyed by a generated UUID.
type ConfigRepo struct {
	base *BaseRepo[storedConfig]
	opts repoOptions
}

func NewConfigRepo(core store.Store, opts ...Option) *ConfigRepo {
	return &ConfigRepo{
		base: NewBaseRepo[storedConfig](core, types.ResourceTypeConfig, "config entry"),
		opts: buildOptions(opts),
	}
}

// Create assigns an ID and timestamps, then stores the entry. The entry is updated in place.
func (r *ConfigRepo) Create(ctx context.Context, entry *types.ConfigEntry) error {
	if entry == nil {
		return types.NewValidationError("config entry is required")
	}
	entry.ID = uuid.NewString()
	now := r.opts.now()
	entry.Created = now
	entry.Modified = now

	rec, err := r.seal(entry)
	if err != nil {
		return err
	}
	return r.base.Create(ctx, entry.ID, rec)
}

// Get returns the entry with the given ID.
func (r *ConfigRepo) Get(ctx context.Context, id string) (*types.ConfigEntry, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, types.NewNotFoundError("config entry", id)
	}
	rec, err := r.base.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.open(rec)
}

// Update replaces the entry, keeping its original created stamp.
func (r *ConfigRepo) Update(ctx context.Context, entry *types.ConfigEntry) error {
	cur, err := r.base.Get(ctx, entry.ID)
	if err != nil {
		return err
	}
	entry.Created = cur.Created
	entry.Modified = r.opts.now()

	rec, err := r.seal(entry)
	if err != nil {
		return err
	}
	return r.base.Update(ctx, entry.ID, rec)
}

// Delete removes the entry.
func (r *ConfigRepo) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return types.NewNotFoundError("config entry", id)
	}
	return r.base.Delete(ctx, id)
}

// List returns every entry.
func (r *ConfigRepo) List(ctx context.Context) ([]*types.ConfigEntry, error) {
	recs, err := r.base.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*types.ConfigEntry, 0, len(recs))
	for _, rec := range recs {
		entry, err := r.open(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// FindByName returns every entry with the given name.
func (r *ConfigRepo) FindByName(ctx context.Context, name string) ([]*types.ConfigEntry, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*types.ConfigEntry
	for _, entry := range all {
		if entry.Name == name {
			out = append(out, entry)
		}
	}
	return out, nil
}

func valueAAD(id string) string {
	return fmt.Sprintf("configs|%s|value", id)
}

func (r *ConfigRepo) seal(entry *types.ConfigEntry) (*storedConfig, error) {
	rec := &storedConfig{ConfigEntry: *entry.Clone()}
	if r.opts.cipher == nil || !entry.IsSensitive {
		return rec, nil
	}
	pt, err := json.Marshal(entry.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	ct, err := r.opts.cipher.EncryptString(string(pt), valueAAD(entry.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt value: %w", err)
	}
	rec.Value = types.StringValue(ct)
	rec.Encrypted = true
	return rec, nil
}

func (r *ConfigRepo) open(rec *storedConfig) (*types.ConfigEntry, error) {
	entry := rec.ConfigEntry
	if !rec.Encrypted {
		return &entry, nil
	}
	if r.opts.cipher == nil {
		return nil, types.NewMisconfiguredError("config entry %s is encrypted but no encryption key is configured", entry.ID)
	}
	ct, _ := rec.Value.AsString()
	pt, err := r.opts.cipher.DecryptString(ct, valueAAD(entry.ID))
	if err != nil {
		return nil, types.NewMisconfiguredError("cannot decrypt config entry %s: %v", entry.ID, err)
	}
	var v types.Value
	if err := json.Unmarshal([]byte(pt), &v); err != nil {
		return nil, fmt.Errorf("failed to decode value of %s: %w", entry.ID, err)
	}
	entry.Value = v
	return &entry, nil
}
