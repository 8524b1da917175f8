package types

import (
	"strings"
)

// AssociationKind is the target of an association filter.
type AssociationKind string

const (
	AssociationApplication AssociationKind = "application"
	AssociationEnvironment AssociationKind = "environment"
)

// AssociationFilter selects entries associated with an application version or an environment.
type AssociationFilter struct {
	Kind    AssociationKind
	Name    string
	Version string
}

// ParseAssociationFilter parses application|<name>|<version> or environment|<name>.
func ParseAssociationFilter(s string) (AssociationFilter, error) {
	parts := strings.Split(s, "|")
	switch {
	case parts[0] == string(AssociationApplication) && len(parts) == 3 && parts[1] != "" && parts[2] != "":
		return AssociationFilter{Kind: AssociationApplication, Name: parts[1], Version: parts[2]}, nil
	case parts[0] == string(AssociationEnvironment) && len(parts) == 2 && parts[1] != "":
		return AssociationFilter{Kind: AssociationEnvironment, Name: parts[1]}, nil
	default:
		return AssociationFilter{}, NewValidationError("unrecognized association %q", s)
	}
}

// String returns the filter in its query string form.
func (f AssociationFilter) String() string {
	if f.Kind == AssociationApplication {
		return strings.Join([]string{string(f.Kind), f.Name, f.Version}, "|")
	}
	return string(f.Kind) + "|" + f.Name
}

// Matches reports whether the entry carries this association.
func (f AssociationFilter) Matches(entry *ConfigEntry) bool {
	switch f.Kind {
	case AssociationApplication:
		return entry.Associations.HasApplication(f.Name, f.Version)
	case AssociationEnvironment:
		return entry.Associations.HasEnvironment(f.Name)
	default:
		return false
	}
}

// ConfigQuery is the association query: names AND (any association), optionally filtered by activity.
type ConfigQuery struct {
	Names        []string
	Associations []AssociationFilter
	IsActive     *bool
}

// ParseConfigQuery builds a query from raw query string values. Names may be repeated or
// comma separated; duplicate associations are rejected.
func ParseConfigQuery(names, associations []string, isActive string) (ConfigQuery, error) {
	var q ConfigQuery
	for _, raw := range names {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				return ConfigQuery{}, NewValidationError("names must not be empty")
			}
			q.Names = append(q.Names, name)
		}
	}

	seen := make(map[string]bool, len(associations))
	for _, raw := range associations {
		if seen[raw] {
			return ConfigQuery{}, NewValidationError("duplicate association %q", raw)
		}
		seen[raw] = true
		f, err := ParseAssociationFilter(raw)
		if err != nil {
			return ConfigQuery{}, err
		}
		q.Associations = append(q.Associations, f)
	}

	switch strings.ToLower(isActive) {
	case "":
	case "true":
		v := true
		q.IsActive = &v
	case "false":
		v := false
		q.IsActive = &v
	default:
		return ConfigQuery{}, NewValidationError("isActive must be true or false")
	}
	return q, nil
}
