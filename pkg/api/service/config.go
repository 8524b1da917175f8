package service

import (
	"context"
	"strings"

	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// ConfigRepository is the config entry storage used by ConfigService.
type ConfigRepository interface {
	Create(ctx context.Context, entry *types.ConfigEntry) error
	Get(ctx context.Context, id string) (*types.ConfigEntry, error)
	Update(ctx context.Context, entry *types.ConfigEntry) error
	Delete(ctx context.Context, id string) error
}

// ConfigResolver answers weighted resolutions and association queries.
type ConfigResolver interface {
	Resolve(ctx context.Context, name string, tags []types.Tag, caller *types.Identity) (*types.ConfigEntry, error)
	Query(ctx context.Context, q types.ConfigQuery, caller *types.Identity) ([]*types.ConfigEntry, error)
}

// ClientLookup checks that a client exists.
type ClientLookup interface {
	GetClient(ctx context.Context, name string) (*types.Client, error)
}

// ConfigService implements reads and writes of config entries under the access policy.
type ConfigService struct {
	repo     ConfigRepository
	resolver ConfigResolver
	clients  ClientLookup
	logger   log.Logger
}

func NewConfigService(repo ConfigRepository, resolver ConfigResolver, clients ClientLookup, logger log.Logger) *ConfigService {
	return &ConfigService{
		repo:     repo,
		resolver: resolver,
		clients:  clients,
		logger:   componentLogger(logger, "config-service"),
	}
}

// Get returns one entry. Entries the caller may not read are reported as not found.
func (s *ConfigService) Get(ctx context.Context, caller *types.Identity, id string) (*types.ConfigEntry, error) {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanRead(caller, entry) {
		return nil, types.NewNotFoundError("config entry", id)
	}
	return entry, nil
}

// Resolve returns the most specific entry for name under the request tags.
func (s *ConfigService) Resolve(ctx context.Context, caller *types.Identity, name string, tags []types.Tag) (*types.ConfigEntry, error) {
	return s.resolver.Resolve(ctx, name, tags, caller)
}

// Query runs an association query.
func (s *ConfigService) Query(ctx context.Context, caller *types.Identity, q types.ConfigQuery) ([]*types.ConfigEntry, error) {
	return s.resolver.Query(ctx, q, caller)
}

// Create stores a new entry owned by the caller. Only confirmed clients may create entries.
func (s *ConfigService) Create(ctx context.Context, caller *types.Identity, entry *types.ConfigEntry) (*types.ConfigEntry, error) {
	if err := requireIdentity(caller); err != nil {
		return nil, err
	}
	if !auth.CanCreate(caller) {
		return nil, types.NewForbiddenError("client %q is not confirmed", caller.Name)
	}
	if entry == nil {
		return nil, types.NewValidationError("config entry is required")
	}

	entry.Normalize()
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	entry.Owner = caller.Name

	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("Config entry created",
		log.Str("id", entry.ID), log.Str("name", entry.Name), log.Client(caller.Name))
	return entry, nil
}

// Update replaces the entry with the given ID. The caller must own the entry or be an admin;
// only admins may hand an entry to another owner, and the new owner must be a known client.
func (s *ConfigService) Update(ctx context.Context, caller *types.Identity, id string, entry *types.ConfigEntry) (*types.ConfigEntry, error) {
	if err := requireIdentity(caller); err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, types.NewValidationError("config entry is required")
	}
	if entry.ID != "" && entry.ID != id {
		return nil, types.NewValidationError("id in body %q does not match id in path %q", entry.ID, id)
	}

	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanWrite(caller, current) {
		return nil, types.NewForbiddenError("only the owner or an admin may modify config entry %s", id)
	}

	entry.Normalize()
	entry.ID = id
	entry.Owner = strings.TrimSpace(entry.Owner)
	if entry.Owner == "" {
		entry.Owner = current.Owner
	}
	if entry.Owner != current.Owner {
		if !caller.IsAdmin {
			return nil, types.NewForbiddenError("only an admin may change the owner of config entry %s", id)
		}
		if _, err := s.clients.GetClient(ctx, entry.Owner); err != nil {
			if types.IsNotFoundError(err) {
				return nil, types.NewValidationError("owner %q is not a registered client", entry.Owner)
			}
			return nil, err
		}
	}
	if err := entry.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("Config entry updated",
		log.Str("id", id), log.Str("name", entry.Name), log.Client(caller.Name))
	return entry, nil
}

// Delete removes the entry. The caller must own the entry or be an admin.
func (s *ConfigService) Delete(ctx context.Context, caller *types.Identity, id string) error {
	if err := requireIdentity(caller); err != nil {
		return err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanDelete(caller, current) {
		return types.NewForbiddenError("only the owner or an admin may delete config entry %s", id)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("Config entry deleted", log.Str("id", id), log.Client(caller.Name))
	return nil
}
