package auth

import (
	"context"
	"strings"

	"github.com/mac-/configurine/pkg/types"
)

type identityKey struct{}

// WithIdentity returns a context carrying the caller identity.
func WithIdentity(ctx context.Context, id *types.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity, or nil for anonymous callers.
func IdentityFromContext(ctx context.Context) *types.Identity {
	id, _ := ctx.Value(identityKey{}).(*types.Identity)
	return id
}

// TokenFromHeader extracts the token from an Authorization header value. Both
// "Bearer <token>" and a bare token are accepted.
func TokenFromHeader(h string) string {
	h = strings.TrimSpace(h)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return h
}
