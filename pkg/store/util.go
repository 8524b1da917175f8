package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mac-/configurine/pkg/types"
)

// MakeKey creates the storage key of a resource.
func MakeKey(resourceType types.ResourceType, key string) []byte {
	return []byte(fmt.Sprintf("%s/%s", resourceType, key))
}

// MakePrefix creates the prefix shared by every key of a resource type.
func MakePrefix(resourceType types.ResourceType) []byte {
	return []byte(fmt.Sprintf("%s/", resourceType))
}

// ParseKey splits a storage key into its resource type and resource key.
func ParseKey(key []byte) (resourceType, name string, ok bool) {
	rt, name, found := strings.Cut(string(key), "/")
	if !found || rt == "" || name == "" {
		return "", "", false
	}
	return rt, name, true
}

// checkKey rejects keys that cannot be stored unambiguously by every backend.
func checkKey(resourceType types.ResourceType, key string) error {
	if !resourceType.IsValid() {
		return fmt.Errorf("unknown resource type %q", resourceType)
	}
	if key == "" {
		return fmt.Errorf("empty %s key", resourceType)
	}
	if strings.ContainsAny(key, "/\x00") {
		return fmt.Errorf("invalid %s key %q", resourceType, key)
	}
	return nil
}

// decodeList unmarshals a sequence of JSON documents into target, which must point to a slice.
func decodeList(items [][]byte, target interface{}) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(item)
	}
	buf.WriteByte(']')
	if err := json.Unmarshal(buf.Bytes(), target); err != nil {
		return fmt.Errorf("failed to deserialize resources: %w", err)
	}
	return nil
}

// UnmarshalResource converts between types that share a JSON shape.
func UnmarshalResource(source interface{}, target interface{}) error {
	jsonData, err := json.Marshal(source)
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %w", err)
	}
	if err := json.Unmarshal(jsonData, target); err != nil {
		return fmt.Errorf("failed to unmarshal resource: %w", err)
	}
	return nil
}

func marshalResource(resource interface{}) ([]byte, error) {
	data, err := json.Marshal(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize resource: %w", err)
	}
	return data, nil
}

func unmarshalResource(data []byte, resource interface{}) error {
	if err := json.Unmarshal(data, resource); err != nil {
		return fmt.Errorf("failed to deserialize resource: %w", err)
	}
	return nil
}
