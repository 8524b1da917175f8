package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultKEKEnvVar holds the base64 master key when the env source is used.
const DefaultKEKEnvVar = "CONFIGURINE_MASTER_KEY"

// KEKSource defines how to load the master key (KEK)
type KEKSource string

const (
	KEKSourceFile      KEKSource = "file"
	KEKSourceEnv       KEKSource = "env"
	KEKSourceGenerated KEKSource = "generated"
)

// KEKOptions holds configuration for loading the KEK
type KEKOptions struct {
	Source            KEKSource
	FilePath          string
	EnvVar            string
	GenerateIfMissing bool
}

// LoadOrGenerateKEK loads a 32-byte KEK according to options. File and env values are
// base64-encoded 32 bytes. A generated key is persisted to FilePath with mode 0600 when a
// path is set; a key generated without a path only lives as long as the process.
func LoadOrGenerateKEK(opts KEKOptions) ([]byte, error) {
	switch opts.Source {
	case KEKSourceFile:
		if opts.FilePath == "" {
			return nil, errors.New("kek file path is required")
		}
		b64, err := os.ReadFile(opts.FilePath)
		if err != nil {
			if opts.GenerateIfMissing && errors.Is(err, os.ErrNotExist) {
				return generateAndPersistKEK(opts.FilePath)
			}
			return nil, fmt.Errorf("failed to read kek file: %w", err)
		}
		key, err := decodeB64Key(string(bytes.TrimSpace(b64)))
		if err != nil {
			return nil, fmt.Errorf("invalid kek file: %w", err)
		}
		return key, nil
	case KEKSourceEnv:
		envVar := opts.EnvVar
		if envVar == "" {
			return nil, errors.New("kek env var is required")
		}
		val := os.Getenv(envVar)
		if val == "" {
			if opts.GenerateIfMissing && opts.FilePath != "" {
				return generateAndPersistKEK(opts.FilePath)
			}
			return nil, fmt.Errorf("env var %s is empty", envVar)
		}
		return decodeB64Key(val)
	case KEKSourceGenerated:
		if opts.FilePath != "" {
			return LoadOrGenerateKEK(KEKOptions{Source: KEKSourceFile, FilePath: opts.FilePath, GenerateIfMissing: true})
		}
		return RandomBytes(32)
	default:
		return nil, fmt.Errorf("unknown kek source: %s", opts.Source)
	}
}

func generateAndPersistKEK(path string) ([]byte, error) {
	key, err := RandomBytes(32)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create dir for kek: %w", err)
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write kek file: %w", err)
	}
	return key, nil
}

func decodeB64Key(v string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length: got %d, want 32", len(key))
	}
	return key, nil
}
