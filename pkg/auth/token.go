package auth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mac-/configurine/pkg/types"
)

// Token is a bearer token of the form name:issuedAt:expiresAt:signature. Times are epoch
// seconds and the signature is the hex HMAC of the first three fields under the client's
// private key.
type Token struct {
	Name      string
	IssuedAt  int64
	ExpiresAt int64
	Signature string

	payload string
}

// Payload returns the signed part of the token.
func (t Token) Payload() string {
	if t.payload != "" {
		return t.payload
	}
	return fmt.Sprintf("%s:%d:%d", t.Name, t.IssuedAt, t.ExpiresAt)
}

// String returns the wire form of the token.
func (t Token) String() string {
	return t.Payload() + ":" + t.Signature
}

// ExpiresIn returns the token lifetime in seconds.
func (t Token) ExpiresIn() int64 {
	return t.ExpiresAt - t.IssuedAt
}

// ParseToken splits a token into its fields. The signed payload is kept exactly as received.
func ParseToken(s string) (Token, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Token{}, types.NewAuthError("invalid token format")
	}
	for _, p := range parts {
		if p == "" {
			return Token{}, types.NewAuthError("invalid token format")
		}
	}
	issued, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Token{}, types.NewAuthError("invalid token format")
	}
	expires, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Token{}, types.NewAuthError("invalid token format")
	}
	return Token{
		Name:      parts[0],
		IssuedAt:  issued,
		ExpiresAt: expires,
		Signature: parts[3],
		payload:   s[:strings.LastIndex(s, ":")],
	}, nil
}

// HandshakeMessage returns the message a client signs with its shared key to request a token.
func HandshakeMessage(name string, timestamp int64) string {
	return fmt.Sprintf("%s:%d", name, timestamp)
}
