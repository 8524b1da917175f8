package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/store/repos"
	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }
func newTestClock() *testClock               { return &testClock{now: time.Unix(1_700_000_000, 0)} }
func sign(name string, ts int64, key string) string {
	return crypto.NewSigner().Sign(HandshakeMessage(name, ts), key)
}

func setupAuthority(t *testing.T, opts ...AuthorityOption) (*Authority, *repos.ClientRepo, *testClock) {
	t.Helper()
	clock := newTestClock()
	clients := repos.NewClientRepo(store.NewMemoryStore())
	opts = append([]AuthorityOption{WithClock(clock.Now), WithLogger(log.NewTestLogger())}, opts...)
	a := NewAuthority(clients, crypto.NewSigner(), opts...)

	_, err := a.AddClient(context.Background(), types.ClientSpec{Name: "Alice", Email: "alice@example.com", SharedKey: " S3CRET "})
	require.NoError(t, err)
	return a, clients, clock
}

func issue(t *testing.T, a *Authority, clock *testClock) Token {
	t.Helper()
	ts := clock.Now().Unix()
	tok, err := a.Authenticate(context.Background(), "alice", ts, sign("alice", ts, "s3cret"))
	require.NoError(t, err)
	return tok
}

func TestAuthenticateAndValidate(t *testing.T) {
	a, _, clock := setupAuthority(t)
	ctx := context.Background()

	tok := issue(t, a, clock)
	assert.Equal(t, "alice", tok.Name)
	assert.Equal(t, clock.Now().Unix(), tok.IssuedAt)
	assert.Equal(t, int64(3600), tok.ExpiresIn())

	raw := tok.String()
	parts := strings.Split(raw, ":")
	require.Len(t, parts, 4)
	assert.Equal(t, strconv.FormatInt(tok.ExpiresAt, 10), parts[2])

	id, err := a.ValidateToken(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, &types.Identity{Name: "alice"}, id)
}

func TestAuthenticateRejects(t *testing.T) {
	a, _, clock := setupAuthority(t)
	ctx := context.Background()
	now := clock.Now().Unix()

	tests := []struct {
		name      string
		client    string
		ts        int64
		signature string
		check     func(error) bool
	}{
		{"milliseconds", "alice", now * 1000, sign("alice", now*1000, "s3cret"), types.IsValidationError},
		{"missing client", "", now, "abc", types.IsValidationError},
		{"missing signature", "alice", now, "", types.IsValidationError},
		{"too old", "alice", now - 601, sign("alice", now-601, "s3cret"), types.IsAuthError},
		{"too new", "alice", now + 601, sign("alice", now+601, "s3cret"), types.IsAuthError},
		{"far future", "alice", 20_000_000_000, sign("alice", 20_000_000_000, "s3cret"), types.IsAuthError},
		{"unknown client", "bob", now, sign("bob", now, "s3cret"), types.IsAuthError},
		{"wrong key", "alice", now, sign("alice", now, "other"), types.IsAuthError},
		{"malformed signature", "alice", now, "zz-not-hex", types.IsAuthError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Authenticate(ctx, tt.client, tt.ts, tt.signature)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error type: %v", err)
		})
	}
}

func TestAuthenticateAtToleranceBoundary(t *testing.T) {
	a, _, clock := setupAuthority(t)
	ts := clock.Now().Unix() - 600

	_, err := a.Authenticate(context.Background(), "alice", ts, sign("alice", ts, "s3cret"))
	assert.NoError(t, err)
}

func TestValidateTokenExpiry(t *testing.T) {
	a, _, clock := setupAuthority(t, WithTokenExpiration(time.Minute))
	ctx := context.Background()
	tok := issue(t, a, clock)

	clock.Advance(time.Minute)
	_, err := a.ValidateToken(ctx, tok.String())
	assert.NoError(t, err, "a token is valid up to and including its expiry second")

	clock.Advance(time.Second)
	_, err = a.ValidateToken(ctx, tok.String())
	require.Error(t, err)
	assert.True(t, types.IsAuthError(err))
	assert.Contains(t, err.Error(), "token expired")
}

func TestValidateTokenRejectsMalformed(t *testing.T) {
	a, _, clock := setupAuthority(t)
	ctx := context.Background()
	tok := issue(t, a, clock)

	bad := []string{
		"",
		"alice",
		"alice:1:2",
		"alice::2:abc",
		"alice:x:2:abc",
		"alice:1:y:abc",
		tok.String() + ":extra",
	}
	for _, raw := range bad {
		_, err := a.ValidateToken(ctx, raw)
		assert.True(t, types.IsAuthError(err), "token %q: got %v", raw, err)
	}
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	a, _, clock := setupAuthority(t)
	ctx := context.Background()
	tok := issue(t, a, clock)

	forged := tok
	forged.payload = ""
	forged.ExpiresAt += 3600
	_, err := a.ValidateToken(ctx, forged.String())
	assert.True(t, types.IsAuthError(err), "got %v", err)

	_, err = a.ValidateToken(ctx, "mallory:1:99999999999:"+tok.Signature)
	assert.True(t, types.IsAuthError(err), "got %v", err)
}

func TestRotatePrivateKeyInvalidatesTokens(t *testing.T) {
	a, _, clock := setupAuthority(t)
	ctx := context.Background()
	tok := issue(t, a, clock)

	_, err := a.ValidateToken(ctx, tok.String())
	require.NoError(t, err)

	_, err = a.UpdateClient(ctx, "alice", types.ClientUpdate{RotatePrivateKey: true})
	require.NoError(t, err)

	_, err = a.ValidateToken(ctx, tok.String())
	assert.True(t, types.IsAuthError(err), "got %v", err)

	fresh := issue(t, a, clock)
	_, err = a.ValidateToken(ctx, fresh.String())
	assert.NoError(t, err)
}

func TestUpdateClientRefreshesAdminFacts(t *testing.T) {
	a, _, clock := setupAuthority(t)
	ctx := context.Background()
	tok := issue(t, a, clock)

	id, err := a.ValidateToken(ctx, tok.String())
	require.NoError(t, err)
	assert.False(t, id.IsConfirmed)

	confirmed, admin := true, true
	_, err = a.UpdateClient(ctx, "ALICE", types.ClientUpdate{IsConfirmed: &confirmed, IsAdmin: &admin})
	require.NoError(t, err)

	id, err = a.ValidateToken(ctx, tok.String())
	require.NoError(t, err)
	assert.True(t, id.IsConfirmed)
	assert.True(t, id.IsAdmin)
}

func TestRemoveClient(t *testing.T) {
	a, _, clock := setupAuthority(t)
	ctx := context.Background()
	tok := issue(t, a, clock)

	require.NoError(t, a.RemoveClient(ctx, "alice"))
	_, err := a.ValidateToken(ctx, tok.String())
	assert.True(t, types.IsAuthError(err), "got %v", err)

	err = a.RemoveClient(ctx, "alice")
	assert.True(t, types.IsNotFoundError(err), "got %v", err)
}

// pausingClientStore blocks the first GetClient after pause is closed, once it has read from
// the store, until release is closed.
type pausingClientStore struct {
	ClientStore
	once    sync.Once
	pause   chan struct{}
	read    chan struct{}
	release chan struct{}
}

func (s *pausingClientStore) GetClient(ctx context.Context, name string) (*types.Client, error) {
	c, err := s.ClientStore.GetClient(ctx, name)
	select {
	case <-s.pause:
		s.once.Do(func() {
			close(s.read)
			<-s.release
		})
	default:
	}
	return c, err
}

func TestRemoveClientDuringValidation(t *testing.T) {
	clock := newTestClock()
	clients := &pausingClientStore{
		ClientStore: repos.NewClientRepo(store.NewMemoryStore()),
		pause:       make(chan struct{}),
		read:        make(chan struct{}),
		release:     make(chan struct{}),
	}
	a := NewAuthority(clients, crypto.NewSigner(), WithClock(clock.Now), WithLogger(log.NewTestLogger()))
	ctx := context.Background()
	_, err := a.AddClient(ctx, types.ClientSpec{Name: "alice", Email: "alice@example.com", SharedKey: "s3cret"})
	require.NoError(t, err)
	tok := issue(t, a, clock)

	// Start from a cold cache so validation has to read the store.
	a.evict("alice")
	close(clients.pause)

	done := make(chan error, 1)
	go func() {
		_, err := a.ValidateToken(ctx, tok.String())
		done <- err
	}()

	<-clients.read
	require.NoError(t, a.RemoveClient(ctx, "alice"))
	close(clients.release)
	<-done

	_, err = a.ValidateToken(ctx, tok.String())
	require.Error(t, err)
	assert.True(t, types.IsAuthError(err), "got %v", err)
	_, cached := a.keyCache.Get("alice")
	assert.False(t, cached, "a removed client must not be cached again")
}

func TestAddClient(t *testing.T) {
	a, _, _ := setupAuthority(t)
	ctx := context.Background()

	c, err := a.GetClient(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", c.SharedKey)
	assert.Len(t, c.PrivateKey, 40)
	assert.False(t, c.IsConfirmed)
	assert.False(t, c.IsAdmin)

	_, err = a.AddClient(ctx, types.ClientSpec{Name: "ALICE", Email: "x@example.com", SharedKey: "k"})
	assert.True(t, types.IsConflictError(err), "got %v", err)

	_, err = a.AddClient(ctx, types.ClientSpec{Name: "a", SharedKey: ""})
	require.Error(t, err)
	assert.True(t, types.IsValidationError(err))
	assert.Contains(t, err.Error(), "email is required")
	assert.Contains(t, err.Error(), "sharedKey is required")

	all, err := a.ListClients(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestValidateTokenUsesCaches(t *testing.T) {
	clock := newTestClock()
	clients := &MockClientStore{}
	alice := &types.Client{Name: "alice", SharedKey: "s3cret", PrivateKey: "feedface", IsConfirmed: true}
	clients.On("GetClient", mock.Anything, "alice").Return(alice, nil).Once()

	a := NewAuthority(clients, crypto.NewSigner(), WithClock(clock.Now), WithLogger(log.NewTestLogger()))
	tok := issue(t, a, clock)

	for i := 0; i < 3; i++ {
		id, err := a.ValidateToken(context.Background(), tok.String())
		require.NoError(t, err)
		assert.True(t, id.IsConfirmed)
	}
	clients.AssertExpectations(t)

	stats := a.CacheStats()
	assert.Equal(t, uint64(3), stats["private_keys"].Hits)
	assert.Equal(t, uint64(3), stats["admin_facts"].Hits)

	// Once the TTL passes the entries are gone and the store is consulted again.
	clock.Advance(DefaultCacheTTL + time.Second)
	assert.Equal(t, 2, a.PurgeCaches())
	clients.On("GetClient", mock.Anything, "alice").Return(alice, nil).Once()
	_, err := a.ValidateToken(context.Background(), issue(t, a, clock).String())
	require.NoError(t, err)
	clients.AssertExpectations(t)
}

func TestStoreFailureSurfacesAsStoreError(t *testing.T) {
	clock := newTestClock()
	clients := &MockClientStore{}
	clients.On("GetClient", mock.Anything, "alice").
		Return(nil, types.NewStoreError("get clients", errors.New("connection refused")))

	a := NewAuthority(clients, crypto.NewSigner(), WithClock(clock.Now), WithLogger(log.NewTestLogger()))
	_, err := a.ValidateToken(context.Background(), "alice:1700000000:1700003600:abcd")
	require.Error(t, err)
	assert.True(t, types.IsStoreError(err), "got %v", err)
	assert.False(t, types.IsAuthError(err))
}
