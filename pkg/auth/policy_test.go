package auth

import (
	"context"
	"testing"

	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestAccessPolicy(t *testing.T) {
	owner := &types.Identity{Name: "alice", IsConfirmed: true}
	other := &types.Identity{Name: "bob", IsConfirmed: true}
	admin := &types.Identity{Name: "root", IsAdmin: true, IsConfirmed: true}
	unconfirmed := &types.Identity{Name: "carol"}

	public := &types.ConfigEntry{Owner: "alice", IsActive: true}
	sensitive := &types.ConfigEntry{Owner: "alice", IsActive: true, IsSensitive: true}
	inactive := &types.ConfigEntry{Owner: "alice"}

	tests := []struct {
		name   string
		id     *types.Identity
		entry  *types.ConfigEntry
		action Action
		want   bool
	}{
		{"anonymous reads public", nil, public, ActionRead, true},
		{"anonymous cannot read sensitive", nil, sensitive, ActionRead, false},
		{"anonymous cannot read inactive", nil, inactive, ActionRead, false},
		{"anonymous cannot write", nil, public, ActionWrite, false},
		{"client reads sensitive", other, sensitive, ActionRead, true},
		{"client reads inactive", other, inactive, ActionRead, true},
		{"owner writes", owner, public, ActionWrite, true},
		{"owner deletes", owner, public, ActionDelete, true},
		{"non-owner cannot write", other, public, ActionWrite, false},
		{"non-owner cannot delete", other, public, ActionDelete, false},
		{"admin writes", admin, public, ActionWrite, true},
		{"admin deletes", admin, sensitive, ActionDelete, true},
		{"nil entry", admin, nil, ActionRead, false},
		{"unknown action", admin, public, Action("publish"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.id, tt.entry, tt.action))
		})
	}

	assert.False(t, CanReadSensitive(nil))
	assert.True(t, CanReadSensitive(unconfirmed))
	assert.True(t, CanCreate(owner))
	assert.False(t, CanCreate(unconfirmed))
	assert.False(t, CanCreate(nil))
	assert.True(t, CanManageClients(admin))
	assert.False(t, CanManageClients(owner))
	assert.False(t, CanManageClients(nil))
}

func TestTokenFromHeader(t *testing.T) {
	assert.Equal(t, "a:1:2:ff", TokenFromHeader("Bearer a:1:2:ff"))
	assert.Equal(t, "a:1:2:ff", TokenFromHeader("bearer   a:1:2:ff "))
	assert.Equal(t, "a:1:2:ff", TokenFromHeader("a:1:2:ff"))
	assert.Equal(t, "", TokenFromHeader(""))
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, IdentityFromContext(ctx))

	id := &types.Identity{Name: "alice"}
	assert.Same(t, id, IdentityFromContext(WithIdentity(ctx, id)))
}

func TestParseTokenKeepsPayload(t *testing.T) {
	tok, err := ParseToken("alice:0100:200:abc")
	assert.NoError(t, err)
	assert.Equal(t, int64(100), tok.IssuedAt)
	assert.Equal(t, "alice:0100:200", tok.Payload())
	assert.Equal(t, "alice:0100:200:abc", tok.String())
}
