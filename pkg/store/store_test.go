package store

import (
	"context"
	"testing"

	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// runStoreSuite exercises the behavior every backend must share.
func runStoreSuite(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	rt := types.ResourceTypeClient

	t.Run("create and get", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, rt, "alpha", testDoc{Name: "alpha", Count: 1}))

		var got testDoc
		require.NoError(t, s.Get(ctx, rt, "alpha", &got))
		assert.Equal(t, testDoc{Name: "alpha", Count: 1}, got)
	})

	t.Run("duplicate create", func(t *testing.T) {
		err := s.Create(ctx, rt, "alpha", testDoc{Name: "alpha"})
		assert.True(t, IsAlreadyExists(err), "got %v", err)
	})

	t.Run("get missing", func(t *testing.T) {
		var got testDoc
		err := s.Get(ctx, rt, "missing", &got)
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("types are separate", func(t *testing.T) {
		var got testDoc
		err := s.Get(ctx, types.ResourceTypeTagType, "alpha", &got)
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("update", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, rt, "alpha", testDoc{Name: "alpha", Count: 2}))

		var got testDoc
		require.NoError(t, s.Get(ctx, rt, "alpha", &got))
		assert.Equal(t, 2, got.Count)

		err := s.Update(ctx, rt, "missing", testDoc{})
		assert.True(t, IsNotFound(err), "got %v", err)
	})

	t.Run("list in key order", func(t *testing.T) {
		require.NoError(t, s.Create(ctx, rt, "charlie", testDoc{Name: "charlie"}))
		require.NoError(t, s.Create(ctx, rt, "bravo", testDoc{Name: "bravo"}))

		var docs []testDoc
		require.NoError(t, s.List(ctx, rt, &docs))
		require.Len(t, docs, 3)
		assert.Equal(t, "alpha", docs[0].Name)
		assert.Equal(t, "bravo", docs[1].Name)
		assert.Equal(t, "charlie", docs[2].Name)

		var none []testDoc
		require.NoError(t, s.List(ctx, types.ResourceTypeConfig, &none))
		assert.Empty(t, none)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, rt, "bravo"))

		err := s.Delete(ctx, rt, "bravo")
		assert.True(t, IsNotFound(err), "got %v", err)

		var docs []testDoc
		require.NoError(t, s.List(ctx, rt, &docs))
		assert.Len(t, docs, 2)
	})

	t.Run("invalid keys", func(t *testing.T) {
		assert.Error(t, s.Create(ctx, rt, "", testDoc{}))
		assert.Error(t, s.Create(ctx, rt, "a/b", testDoc{}))
		assert.Error(t, s.Create(ctx, types.ResourceType("widgets"), "a", testDoc{}))
	})

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
		assert.Equal(t, Connected, s.State())
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	assert.Equal(t, Disconnected, s.State())

	runStoreSuite(t, s)

	require.NoError(t, s.Close())
	err := s.Get(context.Background(), types.ResourceTypeClient, "alpha", &testDoc{})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewSelectsDriver(t *testing.T) {
	s, err := New(Config{Driver: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	s, err = New(Config{Driver: "BADGER", InMemory: true}, nil)
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)

	_, err = New(Config{Driver: "badger"}, nil)
	assert.Error(t, err)

	s, err = New(Config{Driver: "redis", Redis: RedisConfig{Addr: "127.0.0.1:6379"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, Disconnected, s.State())

	_, err = New(Config{Driver: "mysql"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Driver: "etcd"}, nil)
	assert.Error(t, err)
}

func TestParseKey(t *testing.T) {
	rt, name, ok := ParseKey(MakeKey(types.ResourceTypeConfig, "0b1c"))
	require.True(t, ok)
	assert.Equal(t, "configs", rt)
	assert.Equal(t, "0b1c", name)

	_, _, ok = ParseKey([]byte("configs/"))
	assert.False(t, ok)
}
