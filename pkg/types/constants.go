package types

// ResourceType is the kind of document held by the store.
type ResourceType string

const (
	// ResourceTypeConfig is the resource type for config entries, keyed by ID.
	ResourceTypeConfig ResourceType = "configs"

	// ResourceTypeClient is the resource type for API clients, keyed by name.
	ResourceTypeClient ResourceType = "clients"

	// ResourceTypeTagType is the resource type for tag types, keyed by name.
	ResourceTypeTagType ResourceType = "tagtypes"
)

// AllResourceTypes lists every resource type the store must hold.
var AllResourceTypes = []ResourceType{ResourceTypeConfig, ResourceTypeClient, ResourceTypeTagType}

// IsValid reports whether rt is one of AllResourceTypes.
func (rt ResourceType) IsValid() bool {
	for _, t := range AllResourceTypes {
		if rt == t {
			return true
		}
	}
	return false
}

const (
	// MaxConfigNameLength bounds the byte length of a config entry name.
	MaxConfigNameLength = 256

	// TokenTypeBearer is the token_type returned with access tokens.
	TokenTypeBearer = "bearer"
)
