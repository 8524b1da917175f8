package repos

import (
	"context"

	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/types"
)

// TagTypeRepo stores tag types keyed by name.
type TagTypeRepo struct {
	base *BaseRepo[types.TagType]
	opts repoOptions
}

func NewTagTypeRepo(core store.Store, opts ...Option) *TagTypeRepo {
	return &TagTypeRepo{
		base: NewBaseRepo[types.TagType](core, types.ResourceTypeTagType, "tag type"),
		opts: buildOptions(opts),
	}
}

func (r *TagTypeRepo) Create(ctx context.Context, t *types.TagType) error {
	now := r.opts.now()
	t.Created = now
	t.Modified = now
	return r.base.Create(ctx, t.Name, t)
}

func (r *TagTypeRepo) Get(ctx context.Context, name string) (*types.TagType, error) {
	return r.base.Get(ctx, name)
}

func (r *TagTypeRepo) Update(ctx context.Context, t *types.TagType) error {
	cur, err := r.base.Get(ctx, t.Name)
	if err != nil {
		return err
	}
	t.Created = cur.Created
	t.Modified = r.opts.now()
	return r.base.Update(ctx, t.Name, t)
}

func (r *TagTypeRepo) Delete(ctx context.Context, name string) error {
	return r.base.Delete(ctx, name)
}

func (r *TagTypeRepo) List(ctx context.Context) ([]*types.TagType, error) {
	return r.base.List(ctx)
}

// Priorities returns the priority of every tag type, keyed by name.
func (r *TagTypeRepo) Priorities(ctx context.Context) (types.TagPriorities, error) {
	all, err := r.base.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(types.TagPriorities, len(all))
	for _, t := range all {
		out[t.Name] = t.Priority
	}
	return out, nil
}
