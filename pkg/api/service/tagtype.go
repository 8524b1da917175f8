package service

import (
	"context"
	"sort"
	"strings"

	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// TagTypeRepository is the tag type storage used by TagTypeService.
type TagTypeRepository interface {
	Create(ctx context.Context, t *types.TagType) error
	Get(ctx context.Context, name string) (*types.TagType, error)
	Update(ctx context.Context, t *types.TagType) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*types.TagType, error)
}

// PriorityCache is told when the tag type table changes.
type PriorityCache interface {
	Invalidate()
}

// TagTypeService administers tag types and keeps the resolver's priority table current.
type TagTypeService struct {
	repo   TagTypeRepository
	cache  PriorityCache
	logger log.Logger
}

func NewTagTypeService(repo TagTypeRepository, cache PriorityCache, logger log.Logger) *TagTypeService {
	return &TagTypeService{repo: repo, cache: cache, logger: componentLogger(logger, "tagtype-service")}
}

// List returns every tag type ordered by descending priority, then name.
func (s *TagTypeService) List(ctx context.Context) ([]*types.TagType, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority > all[j].Priority
		}
		return all[i].Name < all[j].Name
	})
	return all, nil
}

func (s *TagTypeService) Create(ctx context.Context, caller *types.Identity, t *types.TagType) (*types.TagType, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, types.NewValidationError("tag type is required")
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	s.changed("created", t)
	return t, nil
}

// Update changes the priority of the named tag type.
func (s *TagTypeService) Update(ctx context.Context, caller *types.Identity, name string, t *types.TagType) (*types.TagType, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, types.NewValidationError("tag type is required")
	}
	t.Normalize()
	name = strings.ToLower(strings.TrimSpace(name))
	if t.Name != "" && t.Name != name {
		return nil, types.NewValidationError("name in body %q does not match name in path %q", t.Name, name)
	}
	t.Name = name
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	s.changed("updated", t)
	return t, nil
}

func (s *TagTypeService) Delete(ctx context.Context, caller *types.Identity, name string) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.changed("deleted", &types.TagType{Name: name})
	return nil
}

func (s *TagTypeService) changed(action string, t *types.TagType) {
	if s.cache != nil {
		s.cache.Invalidate()
	}
	s.logger.Info("Tag type "+action, log.Str("tag_type", t.Name), log.Int("priority", t.Priority))
}
