package store

import (
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMySQLDSN(t *testing.T) {
	dsn, err := normalizeMySQLDSN("app:secret@tcp(db:3306)/configurine")
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.True(t, parsed.ClientFoundRows)
	assert.True(t, parsed.ParseTime)
	assert.Equal(t, "configurine", parsed.DBName)
	assert.Equal(t, "db:3306", parsed.Addr)

	_, err = normalizeMySQLDSN("  ")
	assert.Error(t, err)

	_, err = normalizeMySQLDSN("not a dsn")
	assert.Error(t, err)
}

func TestIsDuplicateEntry(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'clients-alice' for key 'PRIMARY'"}
	assert.True(t, isDuplicateEntry(dup))
	assert.True(t, isDuplicateEntry(fmt.Errorf("insert: %w", dup)))
	assert.False(t, isDuplicateEntry(&mysql.MySQLError{Number: 1045}))
	assert.False(t, isDuplicateEntry(fmt.Errorf("boom")))
}

func TestNewMySQLStoreDefaults(t *testing.T) {
	s, err := NewMySQLStore(MySQLConfig{DSN: "app:secret@tcp(127.0.0.1:3306)/configurine"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, s.cfg.MaxOpenConns)
	assert.Equal(t, 10, s.cfg.MaxIdleConns)
	assert.Equal(t, Disconnected, s.State())
}
