// Package resolver selects the most specific config entry for a request context.
package resolver

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/metrics"
	"github.com/mac-/configurine/pkg/types"
)

// ConfigSource reads config entries.
type ConfigSource interface {
	FindByName(ctx context.Context, name string) ([]*types.ConfigEntry, error)
	List(ctx context.Context) ([]*types.ConfigEntry, error)
}

// PrioritySource reads the tag type priority table.
type PrioritySource interface {
	Priorities(ctx context.Context) (types.TagPriorities, error)
}

// Resolver implements weighted tag resolution and association queries.
type Resolver struct {
	configs  ConfigSource
	tagTypes PrioritySource
	logger   log.Logger
	metrics  *metrics.Metrics

	mu         sync.RWMutex
	priorities types.TagPriorities
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithLogger(logger log.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a Resolver.
func New(configs ConfigSource, tagTypes PrioritySource, opts ...Option) *Resolver {
	r := &Resolver{configs: configs, tagTypes: tagTypes}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.GetDefaultLogger()
	}
	r.logger = r.logger.WithComponent("resolver")
	return r
}

// Invalidate drops the cached priority table; the next resolution reloads it.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.priorities = nil
	r.mu.Unlock()
}

// Refresh reloads the priority table now.
func (r *Resolver) Refresh(ctx context.Context) error {
	prios, err := r.tagTypes.Priorities(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.priorities = prios
	r.mu.Unlock()
	r.logger.Debug("Tag priorities refreshed", log.Int("tag_types", len(prios)))
	return nil
}

func (r *Resolver) loadPriorities(ctx context.Context) (types.TagPriorities, error) {
	r.mu.RLock()
	prios := r.priorities
	r.mu.RUnlock()
	if prios == nil {
		if err := r.Refresh(ctx); err != nil {
			return nil, err
		}
		r.mu.RLock()
		prios = r.priorities
		r.mu.RUnlock()
	}
	if len(prios) == 0 {
		return nil, types.NewMisconfiguredError("no tag types are defined; cannot rank config entries")
	}
	return prios, nil
}

// Resolve returns the single most specific active entry named name whose tags are all
// satisfied by requestTags. Entries the caller may not read are ignored. Two matching
// entries with the same weight are a conflict.
func (r *Resolver) Resolve(ctx context.Context, name string, requestTags []types.Tag, caller *types.Identity) (entry *types.ConfigEntry, err error) {
	defer func() { r.metrics.ObserveResolution("resolve", err) }()

	if strings.TrimSpace(name) == "" {
		return nil, types.NewValidationError("name is required")
	}
	request, err := normalizeRequestTags(requestTags)
	if err != nil {
		return nil, err
	}

	candidates, err := r.configs.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}

	var matches []*types.ConfigEntry
	for _, c := range candidates {
		if !c.IsActive || !auth.CanRead(caller, c) {
			continue
		}
		ok, err := matchTags(c, request)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, c)
		}
	}
	if len(matches) == 0 {
		return nil, types.NewNotFoundError("config", name)
	}

	var prios types.TagPriorities
	byWeight := make(map[int][]*types.ConfigEntry, len(matches))
	var best int
	for i, c := range matches {
		weight := 0
		if len(c.Tags) > 0 {
			if prios == nil {
				if prios, err = r.loadPriorities(ctx); err != nil {
					return nil, err
				}
			}
			for _, tag := range c.Tags {
				p, ok := prios[strings.ToLower(tag.Type)]
				if !ok {
					return nil, types.NewMisconfiguredError("config entry %s uses unknown tag type %q", c.ID, tag.Type)
				}
				if p < 0 || weight > math.MaxInt-p {
					return nil, types.NewMisconfiguredError("config entry %s: tag priorities overflow its weight", c.ID)
				}
				weight += p
			}
		}
		byWeight[weight] = append(byWeight[weight], c)
		if i == 0 || weight > best {
			best = weight
		}
	}

	for weight, group := range byWeight {
		if len(group) < 2 {
			continue
		}
		ids := make([]string, len(group))
		for i, c := range group {
			ids[i] = c.ID
		}
		sort.Strings(ids)
		r.logger.Warn("Config conflict: entries share a specificity",
			log.Str("name", name), log.Int("weight", weight), log.Strs("entry_ids", ids))
		return nil, types.NewResolutionConflict(name, weight, ids)
	}

	return byWeight[best][0].Clone(), nil
}

// normalizeRequestTags lowercases tag types and rejects empty or repeated types.
func normalizeRequestTags(tags []types.Tag) (map[string]string, error) {
	out := make(map[string]string, len(tags))
	for _, tag := range tags {
		typ := strings.ToLower(strings.TrimSpace(tag.Type))
		if typ == "" || tag.Value == "" {
			return nil, types.NewValidationError("tags must have a type and a value, got %q", tag.String())
		}
		if _, dup := out[typ]; dup {
			return nil, types.NewValidationError("tag type %q appears more than once", typ)
		}
		out[typ] = tag.Value
	}
	return out, nil
}

// matchTags reports whether every tag of the entry is present in the request with an equal
// value. A stored entry repeating a tag type is corrupt.
func matchTags(entry *types.ConfigEntry, request map[string]string) (bool, error) {
	seen := make(map[string]bool, len(entry.Tags))
	match := true
	for _, tag := range entry.Tags {
		typ := strings.ToLower(tag.Type)
		if seen[typ] {
			return false, types.NewMisconfiguredError("config entry %s has more than one %q tag", entry.ID, typ)
		}
		seen[typ] = true
		if v, ok := request[typ]; !ok || v != tag.Value {
			match = false
		}
	}
	return match, nil
}

// Query returns the entries selected by an association query, sorted by name then ID.
// Entries matching any association are included; a names filter narrows the result. Anonymous
// callers never see sensitive or inactive entries.
func (r *Resolver) Query(ctx context.Context, q types.ConfigQuery, caller *types.Identity) (out []*types.ConfigEntry, err error) {
	defer func() { r.metrics.ObserveResolution("query", err) }()

	var candidates []*types.ConfigEntry
	if len(q.Names) > 0 {
		seenName := make(map[string]bool, len(q.Names))
		for _, name := range q.Names {
			if seenName[name] {
				continue
			}
			seenName[name] = true
			found, err := r.configs.FindByName(ctx, name)
			if err != nil {
				return nil, err
			}
			candidates = append(candidates, found...)
		}
	} else {
		if candidates, err = r.configs.List(ctx); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]bool, len(candidates))
	out = []*types.ConfigEntry{}
	for _, c := range candidates {
		if seen[c.ID] {
			continue
		}
		if q.IsActive != nil && c.IsActive != *q.IsActive {
			continue
		}
		if !auth.CanRead(caller, c) {
			continue
		}
		if len(q.Associations) > 0 && !matchesAny(c, q.Associations) {
			continue
		}
		seen[c.ID] = true
		out = append(out, c.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matchesAny(entry *types.ConfigEntry, filters []types.AssociationFilter) bool {
	for _, f := range filters {
		if f.Matches(entry) {
			return true
		}
	}
	return false
}
