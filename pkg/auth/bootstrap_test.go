package auth

import (
	"context"
	"sync"
	"testing"

	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/store/repos"
	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countAdmins(t *testing.T, clients ClientStore) int {
	t.Helper()
	all, err := clients.ListClients(context.Background())
	require.NoError(t, err)
	n := 0
	for _, c := range all {
		if c.IsAdmin {
			n++
		}
	}
	return n
}

func TestEnsureAdminCreatesOnce(t *testing.T) {
	logger := log.NewTestLogger()
	clients := repos.NewClientRepo(store.NewMemoryStore())
	a := NewAuthority(clients, crypto.NewSigner(), WithLogger(logger))
	ctx := context.Background()

	res, err := a.EnsureAdmin(ctx)
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Equal(t, "admin", res.Name)
	require.NotNil(t, res.Client)
	assert.True(t, res.Client.IsAdmin)
	assert.True(t, res.Client.IsConfirmed)
	assert.Len(t, res.Client.SharedKey, 40)

	again, err := a.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.Same(t, res, again)

	assert.Equal(t, 1, logger.Count(log.WarnLevel, "Created bootstrap admin client"))
	assert.True(t, logger.AssertLoggedWithField(log.WarnLevel, "Created bootstrap admin client", "bootstrap_shared_key", res.Client.SharedKey))

	// A second authority over the same store finds the existing admin.
	other := NewAuthority(clients, crypto.NewSigner(), WithLogger(log.NewTestLogger()))
	res2, err := other.EnsureAdmin(ctx)
	require.NoError(t, err)
	assert.False(t, res2.Created)
	assert.Equal(t, "admin", res2.Name)
	assert.Nil(t, res2.Client)
	assert.Equal(t, 1, countAdmins(t, clients))
}

func TestEnsureAdminBootstrappedCredentialsWork(t *testing.T) {
	clock := newTestClock()
	clients := repos.NewClientRepo(store.NewMemoryStore())
	a := NewAuthority(clients, crypto.NewSigner(), WithClock(clock.Now), WithLogger(log.NewTestLogger()))
	ctx := context.Background()

	res, err := a.EnsureAdmin(ctx)
	require.NoError(t, err)

	ts := clock.Now().Unix()
	tok, err := a.Authenticate(ctx, res.Name, ts, sign(res.Name, ts, res.Client.SharedKey))
	require.NoError(t, err)
	id, err := a.ValidateToken(ctx, tok.String())
	require.NoError(t, err)
	assert.True(t, CanManageClients(id))
}

func TestEnsureAdminConcurrentAuthorities(t *testing.T) {
	clients := repos.NewClientRepo(store.NewMemoryStore())
	ctx := context.Background()

	const servers = 4
	results := make([]*BootstrapResult, servers)
	var wg sync.WaitGroup
	for i := 0; i < servers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := NewAuthority(clients, crypto.NewSigner(), WithLogger(log.NewTestLogger()))
			res, err := a.EnsureAdmin(ctx)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	created := 0
	for _, res := range results {
		require.NotNil(t, res)
		if res.Created {
			created++
		}
		assert.Equal(t, "admin", res.Name)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, countAdmins(t, clients))
}

func TestEnsureAdminNameTakenByRegularClient(t *testing.T) {
	clients := repos.NewClientRepo(store.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, clients.CreateClient(ctx, &types.Client{Name: "root", Email: "r@example.com", SharedKey: "k", PrivateKey: "p"}))

	a := NewAuthority(clients, crypto.NewSigner(), WithLogger(log.NewTestLogger()), WithBootstrapAdmin("Root", "ops@example.com"))
	res, err := a.EnsureAdmin(ctx)
	require.NoError(t, err)
	require.True(t, res.Created)
	assert.Regexp(t, `^root-[0-9a-f]{4}$`, res.Name)
	assert.Equal(t, "ops@example.com", res.Client.Email)

	regular, err := clients.GetClient(ctx, "root")
	require.NoError(t, err)
	assert.False(t, regular.IsAdmin)
}
