package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mac-/configurine/pkg/types"
)

// ParseTags parses repeated or comma separated type:value flags.
// Example: ["environment:production,region:us-east"] -> two tags
func ParseTags(values []string) ([]types.Tag, error) {
	var tags []types.Tag
	for _, raw := range values {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			tag, err := types.ParseTag(part)
			if err != nil {
				return nil, err
			}
			tags = append(tags, tag)
		}
	}
	return tags, nil
}

// ParseApplications parses name@version flags and groups versions by application, keeping the
// order in which names first appear.
// Example: ["billing@1.0", "billing@1.1", "web@2"] -> billing[1.0 1.1], web[2]
func ParseApplications(values []string) ([]types.Application, error) {
	var apps []types.Application
	index := make(map[string]int)
	for _, raw := range values {
		name, version, ok := strings.Cut(strings.TrimSpace(raw), "@")
		name = strings.TrimSpace(name)
		version = strings.TrimSpace(version)
		if !ok || name == "" || version == "" {
			return nil, types.NewValidationError("invalid application %q, expected name@version", raw)
		}
		i, seen := index[name]
		if !seen {
			i = len(apps)
			index[name] = i
			apps = append(apps, types.Application{Name: name})
		}
		apps[i].Versions = append(apps[i].Versions, version)
	}
	return apps, nil
}

// ParseOptionalBool parses a tri-state flag: empty means unset.
func ParseOptionalBool(s string) (*bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, types.NewValidationError("invalid boolean %q", s)
	}
	return &b, nil
}

// Truncate shortens s to n runes with a trailing ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:n-3]))
}
