package auth

import "github.com/mac-/configurine/pkg/types"

// Action is an operation on a config entry.
type Action string

const (
	ActionRead   Action = "read"
	ActionWrite  Action = "write"
	ActionDelete Action = "delete"
)

// CanRead reports whether the caller may see the entry at all. Anonymous callers see only
// active, non-sensitive entries.
func CanRead(id *types.Identity, entry *types.ConfigEntry) bool {
	if entry == nil {
		return false
	}
	if id == nil {
		return entry.IsActive && !entry.IsSensitive
	}
	return true
}

// CanReadSensitive reports whether the caller may see sensitive values.
func CanReadSensitive(id *types.Identity) bool {
	return id != nil
}

// CanWrite reports whether the caller may modify the entry: its owner or an admin.
func CanWrite(id *types.Identity, entry *types.ConfigEntry) bool {
	if id == nil || entry == nil {
		return false
	}
	return id.IsAdmin || entry.Owner == id.Name
}

// CanDelete follows the same rule as CanWrite.
func CanDelete(id *types.Identity, entry *types.ConfigEntry) bool {
	return CanWrite(id, entry)
}

// CanCreate reports whether the caller may create entries: confirmed clients only.
func CanCreate(id *types.Identity) bool {
	return id != nil && id.IsConfirmed
}

// CanManageClients reports whether the caller may administer clients and tag types.
func CanManageClients(id *types.Identity) bool {
	return id != nil && id.IsAdmin
}

// Authorize dispatches to the predicate for the action.
func Authorize(id *types.Identity, entry *types.ConfigEntry, action Action) bool {
	switch action {
	case ActionRead:
		return CanRead(id, entry)
	case ActionWrite:
		return CanWrite(id, entry)
	case ActionDelete:
		return CanDelete(id, entry)
	default:
		return false
	}
}
