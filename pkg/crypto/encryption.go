package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// encryptedPrefix marks a string produced by EncryptString.
const encryptedPrefix = "enc:v1:"

// AEADCipher provides authenticated encryption with associated data (AEAD)
// using AES-256-GCM.
type AEADCipher struct {
	key  []byte
	aead cipher.AEAD
}

// NewAEADCipher creates a new AEAD cipher with the provided 32-byte key.
func NewAEADCipher(key []byte) (*AEADCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("invalid key length: got %d, want 32", len(key))
	}
	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	block, err := aes.NewCipher(keyCopy)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AEADCipher{key: keyCopy, aead: gcm}, nil
}

// Encrypt encrypts plaintext with optional associated data (aad).
// It returns nonce||ciphertext, where nonce is 12 random bytes.
func (a *AEADCipher) Encrypt(plaintext, aad []byte) ([]byte, error) {
	nonce, err := RandomBytes(a.aead.NonceSize())
	if err != nil {
		return nil, err
	}
	return a.aead.Seal(nonce, nonce, plaintext, aad), nil
}

// Decrypt decrypts data produced by Encrypt. Input must be nonce||ciphertext.
func (a *AEADCipher) Decrypt(data, aad []byte) ([]byte, error) {
	n := a.aead.NonceSize()
	if len(data) < n {
		return nil, errors.New("ciphertext too short")
	}
	return a.aead.Open(nil, data[:n], data[n:], aad)
}

// EncryptString encrypts s and returns a printable, prefixed string. The aad binds the
// ciphertext to the record it belongs to, such as a client name or config entry ID.
func (a *AEADCipher) EncryptString(s, aad string) (string, error) {
	ct, err := a.Encrypt([]byte(s), []byte(aad))
	if err != nil {
		return "", err
	}
	return encryptedPrefix + base64.RawStdEncoding.EncodeToString(ct), nil
}

// DecryptString reverses EncryptString. Strings without the prefix are returned unchanged so
// data written before encryption was enabled stays readable.
func (a *AEADCipher) DecryptString(s, aad string) (string, error) {
	if !IsEncrypted(s) {
		return s, nil
	}
	ct, err := base64.RawStdEncoding.DecodeString(strings.TrimPrefix(s, encryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}
	pt, err := a.Decrypt(ct, []byte(aad))
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// IsEncrypted reports whether s was produced by EncryptString.
func IsEncrypted(s string) bool {
	return strings.HasPrefix(s, encryptedPrefix)
}

// Zeroize attempts to clear key material from memory.
func (a *AEADCipher) Zeroize() {
	if a == nil || a.key == nil {
		return
	}
	for i := range a.key {
		a.key[i] = 0
	}
}
