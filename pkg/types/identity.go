package types

// Identity is an authenticated caller. Anonymous callers are represented by a nil *Identity.
type Identity struct {
	Name        string `json:"name"`
	IsAdmin     bool   `json:"isAdmin"`
	IsConfirmed bool   `json:"isConfirmed"`
}

// IsAnonymous reports whether the caller is unauthenticated.
func (i *Identity) IsAnonymous() bool {
	return i == nil
}
