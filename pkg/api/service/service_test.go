package service

import (
	"context"
	"testing"
	"time"

	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/resolver"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/store/repos"
	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	adminID = &types.Identity{Name: "root", IsAdmin: true, IsConfirmed: true}
	aliceID = &types.Identity{Name: "alice", IsConfirmed: true}
	bobID   = &types.Identity{Name: "bob", IsConfirmed: true}
	eveID   = &types.Identity{Name: "eve"}
)

type testEnv struct {
	store     *store.MemoryStore
	authority *auth.Authority
	resolver  *resolver.Resolver
	configs   *ConfigService
	clients   *ClientService
	tagTypes  *TagTypeService
	tokens    *TokenService
	health    *HealthService
	now       time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := log.NewTestLogger()
	st := store.NewMemoryStore()
	env := &testEnv{store: st, now: time.Unix(1_700_000_000, 0)}

	env.authority = auth.NewAuthority(repos.NewClientRepo(st), crypto.NewSigner(),
		auth.WithClock(func() time.Time { return env.now }), auth.WithLogger(logger))
	tagRepo := repos.NewTagTypeRepo(st)
	configRepo := repos.NewConfigRepo(st)
	env.resolver = resolver.New(configRepo, tagRepo, resolver.WithLogger(logger))

	env.configs = NewConfigService(configRepo, env.resolver, env.authority, logger)
	env.clients = NewClientService(env.authority, logger)
	env.tagTypes = NewTagTypeService(tagRepo, env.resolver, logger)
	env.tokens = NewTokenService(env.authority)
	env.health = NewHealthService(st, logger)

	for _, name := range []string{"alice", "bob", "eve"} {
		if _, err := env.clients.Register(context.Background(), types.ClientSpec{Name: name, Email: name + "@example.com", SharedKey: name + "-key"}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	return env
}

func newEntry(name string) *types.ConfigEntry {
	return &types.ConfigEntry{Name: name, Value: types.StringValue("v"), IsActive: true}
}

func TestConfigServiceCRUD(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Create
	created, err := env.configs.Create(ctx, aliceID, newEntry("db.host"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Owner != "alice" || created.ID == "" {
		t.Fatalf("unexpected created entry: %+v", created)
	}

	// Get
	got, err := env.configs.Get(ctx, nil, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "db.host" {
		t.Fatalf("bad get name %q", got.Name)
	}

	// Update
	update := newEntry("db.host")
	update.Value = types.IntValue(5432)
	updated, err := env.configs.Update(ctx, aliceID, created.ID, update)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Owner != "alice" {
		t.Fatalf("owner changed on update: %q", updated.Owner)
	}
	if !updated.Created.Equal(created.Created) {
		t.Fatalf("created stamp not preserved")
	}

	// Delete
	if err := env.configs.Delete(ctx, aliceID, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.configs.Get(ctx, aliceID, created.ID); !types.IsNotFoundError(err) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestConfigServiceCreateRequiresConfirmedClient(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.configs.Create(ctx, nil, newEntry("x"))
	assert.True(t, types.IsAuthError(err), "anonymous create: %v", err)

	_, err = env.configs.Create(ctx, eveID, newEntry("x"))
	assert.True(t, types.IsForbiddenError(err), "unconfirmed create: %v", err)

	_, err = env.configs.Create(ctx, aliceID, &types.ConfigEntry{Name: "x"})
	assert.True(t, types.IsValidationError(err), "missing value: %v", err)
}

func TestConfigServiceOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.configs.Create(ctx, aliceID, newEntry("feature.flag"))
	require.NoError(t, err)

	_, err = env.configs.Update(ctx, bobID, created.ID, newEntry("feature.flag"))
	assert.True(t, types.IsForbiddenError(err), "non-owner update: %v", err)

	err = env.configs.Delete(ctx, bobID, created.ID)
	assert.True(t, types.IsForbiddenError(err), "non-owner delete: %v", err)

	handover := newEntry("feature.flag")
	handover.Owner = "bob"
	_, err = env.configs.Update(ctx, aliceID, created.ID, handover)
	assert.True(t, types.IsForbiddenError(err), "owner change by non-admin: %v", err)

	handover.Owner = "nobody"
	_, err = env.configs.Update(ctx, adminID, created.ID, handover)
	assert.True(t, types.IsValidationError(err), "unknown owner: %v", err)

	handover.Owner = "bob"
	updated, err := env.configs.Update(ctx, adminID, created.ID, handover)
	require.NoError(t, err)
	assert.Equal(t, "bob", updated.Owner)

	// bob now owns it.
	require.NoError(t, env.configs.Delete(ctx, bobID, created.ID))
}

func TestConfigServiceUpdateChecks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	created, err := env.configs.Create(ctx, aliceID, newEntry("a"))
	require.NoError(t, err)

	mismatch := newEntry("a")
	mismatch.ID = "00000000-0000-4000-8000-000000000000"
	_, err = env.configs.Update(ctx, aliceID, created.ID, mismatch)
	assert.True(t, types.IsValidationError(err), "id mismatch: %v", err)

	_, err = env.configs.Update(ctx, aliceID, "00000000-0000-4000-8000-000000000000", newEntry("a"))
	assert.True(t, types.IsNotFoundError(err), "missing entry: %v", err)

	_, err = env.configs.Update(ctx, nil, created.ID, newEntry("a"))
	assert.True(t, types.IsAuthError(err), "anonymous update: %v", err)
}

func TestConfigServiceHidesSensitiveFromAnonymous(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	secret := newEntry("db.password")
	secret.IsSensitive = true
	created, err := env.configs.Create(ctx, aliceID, secret)
	require.NoError(t, err)

	_, err = env.configs.Get(ctx, nil, created.ID)
	assert.True(t, types.IsNotFoundError(err), "anonymous get: %v", err)

	got, err := env.configs.Get(ctx, bobID, created.ID)
	require.NoError(t, err)
	assert.True(t, got.IsSensitive)

	list, err := env.configs.Query(ctx, nil, types.ConfigQuery{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConfigServiceResolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.tagTypes.Create(ctx, adminID, &types.TagType{Name: "Environment", Priority: 1})
	require.NoError(t, err)

	plain, err := env.configs.Create(ctx, aliceID, newEntry("timeout"))
	require.NoError(t, err)
	tagged := newEntry("timeout")
	tagged.Tags = []types.Tag{{Type: "environment", Value: "prod"}}
	tagged, err = env.configs.Create(ctx, aliceID, tagged)
	require.NoError(t, err)

	got, err := env.configs.Resolve(ctx, nil, "timeout", []types.Tag{{Type: "environment", Value: "prod"}})
	require.NoError(t, err)
	assert.Equal(t, tagged.ID, got.ID)

	got, err = env.configs.Resolve(ctx, nil, "timeout", nil)
	require.NoError(t, err)
	assert.Equal(t, plain.ID, got.ID)
}

func TestTagTypeServiceInvalidatesPriorities(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.tagTypes.Create(ctx, adminID, &types.TagType{Name: "environment", Priority: 1})
	require.NoError(t, err)
	_, err = env.tagTypes.Create(ctx, adminID, &types.TagType{Name: "region", Priority: 2})
	require.NoError(t, err)

	env1 := newEntry("db")
	env1.Tags = []types.Tag{{Type: "environment", Value: "prod"}}
	byEnv, err := env.configs.Create(ctx, aliceID, env1)
	require.NoError(t, err)
	reg := newEntry("db")
	reg.Tags = []types.Tag{{Type: "region", Value: "eu"}}
	byRegion, err := env.configs.Create(ctx, aliceID, reg)
	require.NoError(t, err)

	req := []types.Tag{{Type: "environment", Value: "prod"}, {Type: "region", Value: "eu"}}
	got, err := env.configs.Resolve(ctx, nil, "db", req)
	require.NoError(t, err)
	assert.Equal(t, byRegion.ID, got.ID)

	_, err = env.tagTypes.Update(ctx, adminID, "environment", &types.TagType{Priority: 5})
	require.NoError(t, err)

	got, err = env.configs.Resolve(ctx, nil, "db", req)
	require.NoError(t, err)
	assert.Equal(t, byEnv.ID, got.ID)

	require.NoError(t, env.tagTypes.Delete(ctx, adminID, "environment"))
	_, err = env.configs.Resolve(ctx, nil, "db", req)
	assert.True(t, types.IsMisconfiguredError(err), "deleted tag type: %v", err)
}

func TestTagTypeServiceAdminOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.tagTypes.Create(ctx, aliceID, &types.TagType{Name: "environment", Priority: 1})
	assert.True(t, types.IsForbiddenError(err), "non-admin create: %v", err)

	_, err = env.tagTypes.Create(ctx, adminID, &types.TagType{Name: "environment", Priority: 0})
	assert.True(t, types.IsValidationError(err), "zero priority: %v", err)

	_, err = env.tagTypes.Update(ctx, adminID, "environment", &types.TagType{Name: "region", Priority: 3})
	assert.True(t, types.IsValidationError(err), "name mismatch: %v", err)

	_, err = env.tagTypes.Create(ctx, adminID, &types.TagType{Name: "b", Priority: 1})
	require.NoError(t, err)
	_, err = env.tagTypes.Create(ctx, adminID, &types.TagType{Name: "a", Priority: 1})
	require.NoError(t, err)
	_, err = env.tagTypes.Create(ctx, adminID, &types.TagType{Name: "c", Priority: 9})
	require.NoError(t, err)

	list, err := env.tagTypes.List(ctx)
	require.NoError(t, err)
	names := make([]string, len(list))
	for i, tt := range list {
		names[i] = tt.Name
	}
	assert.Equal(t, []string{"c", "a", "b"}, names)
}

func TestClientService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.clients.Register(ctx, types.ClientSpec{Name: "alice", Email: "a@example.com", SharedKey: "k"})
	assert.True(t, types.IsConflictError(err), "duplicate registration: %v", err)

	_, err = env.clients.List(ctx, aliceID)
	assert.True(t, types.IsForbiddenError(err), "non-admin list: %v", err)

	list, err := env.clients.List(ctx, adminID)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	self, err := env.clients.Get(ctx, aliceID, "Alice")
	require.NoError(t, err)
	assert.Empty(t, self.SharedKey, "non-admins never see shared keys")

	_, err = env.clients.Get(ctx, aliceID, "bob")
	assert.True(t, types.IsForbiddenError(err), "get other client: %v", err)

	confirmed := true
	view, err := env.clients.Update(ctx, adminID, "eve", types.ClientUpdate{IsConfirmed: &confirmed})
	require.NoError(t, err)
	assert.True(t, view.IsConfirmed)

	err = env.clients.Delete(ctx, adminID, "root")
	assert.True(t, types.IsValidationError(err), "self removal: %v", err)

	require.NoError(t, env.clients.Delete(ctx, adminID, "eve"))
	_, err = env.clients.Get(ctx, adminID, "eve")
	assert.True(t, types.IsNotFoundError(err), "removed client: %v", err)
}

func TestClientServiceKeepsLastAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.authority.EnsureAdmin(ctx)
	require.NoError(t, err)
	admin := &types.Identity{Name: res.Name, IsAdmin: true, IsConfirmed: true}

	demote, promote := false, true
	_, err = env.clients.Update(ctx, admin, res.Name, types.ClientUpdate{IsAdmin: &demote})
	require.Error(t, err)
	assert.True(t, types.IsValidationError(err), "demoting the last admin: %v", err)

	countAdmins := func() int {
		all, err := env.authority.ListClients(ctx)
		require.NoError(t, err)
		n := 0
		for _, c := range all {
			if c.IsAdmin {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, countAdmins())

	_, err = env.clients.Update(ctx, admin, "alice", types.ClientUpdate{IsAdmin: &promote})
	require.NoError(t, err)
	_, err = env.clients.Update(ctx, admin, res.Name, types.ClientUpdate{IsAdmin: &demote})
	require.NoError(t, err)
	assert.Equal(t, 1, countAdmins())
}

func TestTokenService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ts := env.now.Unix()
	sig := crypto.NewSigner().Sign(auth.HandshakeMessage("alice", ts), "alice-key")

	resp, err := env.tokens.Issue(ctx, TokenRequest{ClientID: "alice", Timestamp: ts, Signature: sig, GrantType: GrantClientCredentials})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64(3600), resp.ExpiresIn)

	id, err := env.tokens.Identify(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Name)
	assert.False(t, id.IsConfirmed)

	id, err = env.tokens.Identify(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, id)

	_, err = env.tokens.Issue(ctx, TokenRequest{ClientID: "alice", Timestamp: ts, Signature: sig, GrantType: "password"})
	assert.True(t, types.IsValidationError(err), "bad grant type: %v", err)

	_, err = ParseTimestamp("17e8")
	assert.True(t, types.IsValidationError(err))
	n, err := ParseTimestamp(" 1700000000 ")
	require.NoError(t, err)
	assert.Equal(t, int64(1_700_000_000), n)
}

func TestHealthService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	report := env.health.Check(ctx)
	assert.True(t, report.Healthy())
	assert.Equal(t, "connected", report.Store)

	require.NoError(t, env.store.Close())
	report = env.health.Check(ctx)
	assert.False(t, report.Healthy())
	assert.NotEmpty(t, report.StoreError)
}
