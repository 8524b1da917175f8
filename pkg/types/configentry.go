package types

import (
	"fmt"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

// Tag is a typed label on a config entry, such as {environment, production}.
type Tag struct {
	Type  string `json:"type" yaml:"type"`
	Value string `json:"value" yaml:"value"`
}

// String returns the tag as type:value.
func (t Tag) String() string {
	return t.Type + ":" + t.Value
}

// ParseTag parses a type:value pair. The type is lowercased.
func ParseTag(s string) (Tag, error) {
	typ, value, ok := strings.Cut(s, ":")
	typ = strings.TrimSpace(typ)
	if !ok || typ == "" || value == "" {
		return Tag{}, NewValidationError("invalid tag %q: expected type:value", s)
	}
	return Tag{Type: strings.ToLower(typ), Value: value}, nil
}

// Application targets an application name and a set of its versions.
type Application struct {
	Name     string   `json:"name" yaml:"name"`
	Versions []string `json:"versions" yaml:"versions"`
}

// Associations is the membership-based targeting model.
type Associations struct {
	Applications []Application `json:"applications" yaml:"applications"`
	Environments []string      `json:"environments" yaml:"environments"`
}

// HasApplication reports whether the associations include the given application version.
func (a Associations) HasApplication(name, version string) bool {
	for _, app := range a.Applications {
		if app.Name != name {
			continue
		}
		for _, v := range app.Versions {
			if v == version {
				return true
			}
		}
	}
	return false
}

// HasEnvironment reports whether the associations include the given environment.
func (a Associations) HasEnvironment(env string) bool {
	for _, e := range a.Environments {
		if e == env {
			return true
		}
	}
	return false
}

// ConfigEntry is a named value targeted by tags and associations.
type ConfigEntry struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Value        Value        `json:"value" yaml:"-"`
	Tags         []Tag        `json:"tags" yaml:"tags"`
	Associations Associations `json:"associations" yaml:"associations"`
	Owner        string       `json:"owner" yaml:"owner"`
	IsSensitive  bool         `json:"isSensitive" yaml:"isSensitive"`
	IsActive     bool         `json:"isActive" yaml:"isActive"`
	Created      time.Time    `json:"created" yaml:"created"`
	Modified     time.Time    `json:"modified" yaml:"modified"`
}

// GetID returns the entry ID.
func (c *ConfigEntry) GetID() string { return c.ID }

// GetResourceType returns the store resource type.
func (c *ConfigEntry) GetResourceType() ResourceType { return ResourceTypeConfig }

// Clone returns a deep copy of the entry. Values are immutable, so they are shared.
func (c *ConfigEntry) Clone() *ConfigEntry {
	if c == nil {
		return nil
	}
	out := *c
	out.Tags = append([]Tag(nil), c.Tags...)
	out.Associations.Environments = append([]string(nil), c.Associations.Environments...)
	out.Associations.Applications = make([]Application, len(c.Associations.Applications))
	for i, app := range c.Associations.Applications {
		out.Associations.Applications[i] = Application{Name: app.Name, Versions: append([]string(nil), app.Versions...)}
	}
	return &out
}

// Normalize lowercases tag types and trims the name.
func (c *ConfigEntry) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	for i := range c.Tags {
		c.Tags[i].Type = strings.ToLower(strings.TrimSpace(c.Tags[i].Type))
	}
	if c.Tags == nil {
		c.Tags = []Tag{}
	}
	if c.Associations.Applications == nil {
		c.Associations.Applications = []Application{}
	}
	if c.Associations.Environments == nil {
		c.Associations.Environments = []string{}
	}
}

// Validate checks the entry for writing. All violations are reported together.
func (c *ConfigEntry) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(c.Name) == "" {
		result = multierror.Append(result, fmt.Errorf("name is required"))
	} else if len(c.Name) > MaxConfigNameLength {
		result = multierror.Append(result, fmt.Errorf("name must be at most %d bytes", MaxConfigNameLength))
	}
	if !c.Value.IsDefined() {
		result = multierror.Append(result, fmt.Errorf("value is required"))
	}

	seen := make(map[string]bool, len(c.Tags))
	for i, tag := range c.Tags {
		typ := strings.ToLower(strings.TrimSpace(tag.Type))
		if typ == "" {
			result = multierror.Append(result, fmt.Errorf("tag %d: type is required", i))
			continue
		}
		if tag.Value == "" {
			result = multierror.Append(result, fmt.Errorf("tag %q: value is required", typ))
		}
		if seen[typ] {
			result = multierror.Append(result, fmt.Errorf("tag type %q appears more than once", typ))
		}
		seen[typ] = true
	}

	for i, app := range c.Associations.Applications {
		if strings.TrimSpace(app.Name) == "" {
			result = multierror.Append(result, fmt.Errorf("application %d: name is required", i))
		}
		for _, v := range app.Versions {
			if strings.TrimSpace(v) == "" {
				result = multierror.Append(result, fmt.Errorf("application %q: versions must not be empty", app.Name))
				break
			}
		}
	}
	for _, env := range c.Associations.Environments {
		if strings.TrimSpace(env) == "" {
			result = multierror.Append(result, fmt.Errorf("environment names must not be empty"))
			break
		}
	}

	return validationFromMultiError("invalid config entry", result)
}

// validationFromMultiError folds an aggregated error into a single ValidationError.
func validationFromMultiError(prefix string, merr *multierror.Error) error {
	if merr.ErrorOrNil() == nil {
		return nil
	}
	merr.ErrorFormat = func(errs []error) string {
		parts := make([]string, len(errs))
		for i, err := range errs {
			parts[i] = err.Error()
		}
		return strings.Join(parts, "; ")
	}
	return NewValidationError("%s: %s", prefix, merr.Error())
}
