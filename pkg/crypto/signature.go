package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// Signer computes and checks HMAC signatures encoded as lowercase hex. A single Signer is
// shared by the authentication handshake and token signing so both use the same algorithm.
type Signer struct {
	newHash func() hash.Hash
}

// NewSigner returns an HMAC-SHA256 signer.
func NewSigner() *Signer {
	return &Signer{newHash: sha256.New}
}

// Sign returns hex(HMAC(message, key)).
func (s *Signer) Sign(message, key string) string {
	mac := hmac.New(s.newHash, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the HMAC of message under key. Comparison is constant
// time; malformed hex never verifies.
func (s *Signer) Verify(message, key, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(s.newHash, []byte(key))
	mac.Write([]byte(message))
	return hmac.Equal(got, mac.Sum(nil))
}
