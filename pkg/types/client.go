package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	multierror "github.com/hashicorp/go-multierror"
)

const (
	MinClientNameLength = 3
	MaxClientNameLength = 64
)

var clientNamePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Client is a registered API client. PrivateKey signs the client's tokens and is never
// returned by the API; SharedKey signs the authentication handshake.
type Client struct {
	Name        string    `json:"name" yaml:"name"`
	Email       string    `json:"email" yaml:"email"`
	SharedKey   string    `json:"sharedKey" yaml:"sharedKey"`
	PrivateKey  string    `json:"privateKey" yaml:"privateKey"`
	IsAdmin     bool      `json:"isAdmin" yaml:"isAdmin"`
	IsConfirmed bool      `json:"isConfirmed" yaml:"isConfirmed"`
	Created     time.Time `json:"created" yaml:"created"`
	Modified    time.Time `json:"modified" yaml:"modified"`
}

// GetID returns the client name, which is its key.
func (c *Client) GetID() string { return c.Name }

// GetResourceType returns the store resource type.
func (c *Client) GetResourceType() ResourceType { return ResourceTypeClient }

// Identity returns the caller identity for this client.
func (c *Client) Identity() *Identity {
	return &Identity{Name: c.Name, IsAdmin: c.IsAdmin, IsConfirmed: c.IsConfirmed}
}

// View returns the API representation. The shared key is included only when requested.
func (c *Client) View(withSharedKey bool) *ClientView {
	v := &ClientView{
		Name:        c.Name,
		Email:       c.Email,
		IsAdmin:     c.IsAdmin,
		IsConfirmed: c.IsConfirmed,
		Created:     c.Created,
		Modified:    c.Modified,
	}
	if withSharedKey {
		v.SharedKey = c.SharedKey
	}
	return v
}

// ClientView is the client as returned by the API.
type ClientView struct {
	Name        string    `json:"name" yaml:"name"`
	Email       string    `json:"email" yaml:"email"`
	SharedKey   string    `json:"sharedKey,omitempty" yaml:"sharedKey,omitempty"`
	IsAdmin     bool      `json:"isAdmin" yaml:"isAdmin"`
	IsConfirmed bool      `json:"isConfirmed" yaml:"isConfirmed"`
	Created     time.Time `json:"created" yaml:"created"`
	Modified    time.Time `json:"modified" yaml:"modified"`
}

// ClientSpec is a registration request.
type ClientSpec struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	SharedKey string `json:"sharedKey"`
}

// NormalizeClientName trims and lowercases a client name.
func NormalizeClientName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateClientName checks the length and charset of a normalized client name.
func ValidateClientName(name string) error {
	if len(name) < MinClientNameLength || len(name) > MaxClientNameLength {
		return fmt.Errorf("name must be %d to %d characters", MinClientNameLength, MaxClientNameLength)
	}
	if !clientNamePattern.MatchString(name) {
		return fmt.Errorf("name %q may only contain lowercase letters, digits, '_' and '-'", name)
	}
	return nil
}

// Normalize trims and lowercases the name and shared key.
func (s *ClientSpec) Normalize() {
	s.Name = NormalizeClientName(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.SharedKey = strings.ToLower(strings.TrimSpace(s.SharedKey))
}

// Validate checks a normalized registration request.
func (s *ClientSpec) Validate() error {
	var result *multierror.Error
	if err := ValidateClientName(s.Name); err != nil {
		result = multierror.Append(result, err)
	}
	if s.Email == "" {
		result = multierror.Append(result, fmt.Errorf("email is required"))
	}
	if s.SharedKey == "" {
		result = multierror.Append(result, fmt.Errorf("sharedKey is required"))
	}
	return validationFromMultiError("invalid client", result)
}

// ClientUpdate is a partial update of a client. Nil fields are left unchanged.
type ClientUpdate struct {
	Email            *string `json:"email,omitempty"`
	SharedKey        *string `json:"sharedKey,omitempty"`
	IsAdmin          *bool   `json:"isAdmin,omitempty"`
	IsConfirmed      *bool   `json:"isConfirmed,omitempty"`
	RotatePrivateKey bool    `json:"rotatePrivateKey,omitempty"`
}

// Validate checks the update fields that are set.
func (u *ClientUpdate) Validate() error {
	var result *multierror.Error
	if u.Email != nil && strings.TrimSpace(*u.Email) == "" {
		result = multierror.Append(result, fmt.Errorf("email must not be empty"))
	}
	if u.SharedKey != nil && strings.TrimSpace(*u.SharedKey) == "" {
		result = multierror.Append(result, fmt.Errorf("sharedKey must not be empty"))
	}
	return validationFromMultiError("invalid client update", result)
}

// Apply copies the set fields onto the client.
func (u *ClientUpdate) Apply(c *Client) {
	if u.Email != nil {
		c.Email = strings.TrimSpace(*u.Email)
	}
	if u.SharedKey != nil {
		c.SharedKey = strings.ToLower(strings.TrimSpace(*u.SharedKey))
	}
	if u.IsAdmin != nil {
		c.IsAdmin = *u.IsAdmin
	}
	if u.IsConfirmed != nil {
		c.IsConfirmed = *u.IsConfirmed
	}
}
