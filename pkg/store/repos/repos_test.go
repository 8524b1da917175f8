package repos

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func testCipher(t *testing.T) *crypto.AEADCipher {
	t.Helper()
	key, err := crypto.RandomBytes(32)
	require.NoError(t, err)
	c, err := crypto.NewAEADCipher(key)
	require.NoError(t, err)
	return c
}

func TestConfigRepoLifecycle(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	repo := NewConfigRepo(store.NewMemoryStore(), WithClock(fixedClock(t0, t1)))

	entry := &types.ConfigEntry{
		Name:     "db.host",
		Value:    types.StringValue("db01"),
		Tags:     []types.Tag{{Type: "env", Value: "prod"}},
		Owner:    "alice",
		IsActive: true,
	}
	require.NoError(t, repo.Create(ctx, entry))
	require.NotEmpty(t, entry.ID)
	assert.Equal(t, t0, entry.Created)

	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(entry, got); diff != "" {
		t.Fatalf("stored entry mismatch (-want +got):\n%s", diff)
	}

	update := got.Clone()
	update.Value = types.IntValue(5432)
	update.Created = time.Time{}
	require.NoError(t, repo.Update(ctx, update))
	assert.Equal(t, t0, update.Created)
	assert.Equal(t, t1, update.Modified)

	byName, err := repo.FindByName(ctx, "db.host")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.True(t, byName[0].Value.Equal(types.IntValue(5432)))

	require.NoError(t, repo.Delete(ctx, entry.ID))
	_, err = repo.Get(ctx, entry.ID)
	assert.True(t, types.IsNotFoundError(err), "got %v", err)
	assert.True(t, types.IsNotFoundError(repo.Delete(ctx, entry.ID)))
}

func TestConfigRepoMalformedIDIsNotFound(t *testing.T) {
	repo := NewConfigRepo(store.NewMemoryStore())
	_, err := repo.Get(context.Background(), "not-a-uuid")
	assert.True(t, types.IsNotFoundError(err), "got %v", err)
}

func TestConfigRepoUpdateMissing(t *testing.T) {
	repo := NewConfigRepo(store.NewMemoryStore())
	err := repo.Update(context.Background(), &types.ConfigEntry{ID: "8c1f2f5e-9d0b-4b8e-8d0e-3a9f4c6e2b11", Name: "x", Value: types.NullValue()})
	assert.True(t, types.IsNotFoundError(err), "got %v", err)
}

func TestConfigRepoEncryptsSensitiveValues(t *testing.T) {
	ctx := context.Background()
	core := store.NewMemoryStore()
	repo := NewConfigRepo(core, WithCipher(testCipher(t)))

	secret := &types.ConfigEntry{Name: "db.password", Value: types.StringValue("hunter2"), IsSensitive: true, IsActive: true}
	plain := &types.ConfigEntry{Name: "db.port", Value: types.IntValue(5432), IsActive: true}
	require.NoError(t, repo.Create(ctx, secret))
	require.NoError(t, repo.Create(ctx, plain))

	var raw map[string]interface{}
	require.NoError(t, core.Get(ctx, types.ResourceTypeConfig, secret.ID, &raw))
	assert.Equal(t, true, raw["encrypted"])
	assert.True(t, crypto.IsEncrypted(raw["value"].(string)))
	assert.NotContains(t, raw["value"], "hunter2")

	require.NoError(t, core.Get(ctx, types.ResourceTypeConfig, plain.ID, &raw))
	assert.Equal(t, float64(5432), raw["value"])

	got, err := repo.Get(ctx, secret.ID)
	require.NoError(t, err)
	assert.True(t, got.Value.Equal(types.StringValue("hunter2")))

	// Without the key, encrypted entries cannot be served.
	_, err = NewConfigRepo(core).Get(ctx, secret.ID)
	assert.True(t, types.IsMisconfiguredError(err), "got %v", err)
}

func TestClientRepo(t *testing.T) {
	ctx := context.Background()
	core := store.NewMemoryStore()
	repo := NewClientRepo(core, WithCipher(testCipher(t)))

	c := &types.Client{Name: "alice", Email: "alice@example.com", SharedKey: "s3cret", PrivateKey: "abcd"}
	require.NoError(t, repo.CreateClient(ctx, c))

	err := repo.CreateClient(ctx, &types.Client{Name: "alice"})
	assert.True(t, types.IsConflictError(err), "got %v", err)

	var raw types.Client
	require.NoError(t, core.Get(ctx, types.ResourceTypeClient, "alice", &raw))
	assert.True(t, strings.HasPrefix(raw.SharedKey, "enc:v1:"))
	assert.True(t, strings.HasPrefix(raw.PrivateKey, "enc:v1:"))

	got, err := repo.GetClient(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", got.SharedKey)
	assert.Equal(t, "abcd", got.PrivateKey)

	got.IsConfirmed = true
	require.NoError(t, repo.UpdateClient(ctx, got))

	list, err := repo.ListClients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsConfirmed)
	assert.Equal(t, "abcd", list[0].PrivateKey)

	_, err = repo.GetClient(ctx, "Not A Name")
	assert.True(t, types.IsNotFoundError(err))

	require.NoError(t, repo.DeleteClient(ctx, "alice"))
	_, err = repo.GetClient(ctx, "alice")
	assert.True(t, types.IsNotFoundError(err))
}

func TestTagTypeRepoPriorities(t *testing.T) {
	ctx := context.Background()
	repo := NewTagTypeRepo(store.NewMemoryStore())

	require.NoError(t, repo.Create(ctx, &types.TagType{Name: "env", Priority: 1}))
	require.NoError(t, repo.Create(ctx, &types.TagType{Name: "app", Priority: 10}))
	assert.True(t, types.IsConflictError(repo.Create(ctx, &types.TagType{Name: "env", Priority: 3})))

	require.NoError(t, repo.Update(ctx, &types.TagType{Name: "env", Priority: 2}))

	prios, err := repo.Priorities(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.TagPriorities{"env": 2, "app": 10}, prios)

	require.NoError(t, repo.Delete(ctx, "app"))
	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "env", all[0].Name)
}

func TestStoreFailuresBecomeStoreErrors(t *testing.T) {
	core := store.NewMemoryStore()
	require.NoError(t, core.Close())

	_, err := NewTagTypeRepo(core).List(context.Background())
	assert.True(t, types.IsStoreError(err), "got %v", err)
	assert.Equal(t, types.CategoryUnavailable, types.Category(err))
}
