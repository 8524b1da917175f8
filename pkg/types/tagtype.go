package types

import (
	"regexp"
	"strings"
	"time"
)

var tagTypeNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// MaxTagPriority bounds a tag type priority so the weight of any entry fits in an int.
const MaxTagPriority = 1 << 20

// TagType names a kind of tag and its priority in relevance resolution.
type TagType struct {
	Name     string    `json:"name" yaml:"name"`
	Priority int       `json:"priority" yaml:"priority"`
	Created  time.Time `json:"created" yaml:"created"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

// GetID returns the tag type name, which is its key.
func (t *TagType) GetID() string { return t.Name }

// GetResourceType returns the store resource type.
func (t *TagType) GetResourceType() ResourceType { return ResourceTypeTagType }

// Normalize lowercases and trims the name.
func (t *TagType) Normalize() {
	t.Name = strings.ToLower(strings.TrimSpace(t.Name))
}

// Validate checks the tag type for writing.
func (t *TagType) Validate() error {
	if t.Name == "" {
		return NewValidationError("tag type name is required")
	}
	if !tagTypeNamePattern.MatchString(t.Name) {
		return NewValidationError("tag type name %q may only contain lowercase letters, digits, '_', '-' and '.'", t.Name)
	}
	if t.Priority <= 0 {
		return NewValidationError("tag type %q: priority must be positive", t.Name)
	}
	if t.Priority > MaxTagPriority {
		return NewValidationError("tag type %q: priority must not exceed %d", t.Name, MaxTagPriority)
	}
	return nil
}

// TagPriorities maps a lowercased tag type to its priority.
type TagPriorities map[string]int
