package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mac-/configurine/pkg/types"
	"gopkg.in/yaml.v3"
)

// Credentials is a client identity stored on disk, as written for the bootstrap admin.
type Credentials struct {
	Server    string `yaml:"server,omitempty"`
	ClientID  string `yaml:"clientId"`
	Email     string `yaml:"email,omitempty"`
	SharedKey string `yaml:"sharedKey"`
	IsAdmin   bool   `yaml:"isAdmin,omitempty"`
}

// LoadCredentials reads a credentials file.
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", path, err)
	}
	if creds.ClientID == "" || creds.SharedKey == "" {
		return nil, types.NewValidationError("credentials file %s needs clientId and sharedKey", path)
	}
	return &creds, nil
}

// Save writes the credentials readable by the owner only.
func (c *Credentials) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return os.Rename(tmp, path)
}
