package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/mac-/configurine/internal/config"
	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bootstrapResult() *auth.BootstrapResult {
	return &auth.BootstrapResult{
		Created: true,
		Name:    "admin",
		Client:  &types.Client{Name: "admin", Email: "ops@example.com", SharedKey: "0123abcd", IsAdmin: true, IsConfirmed: true},
	}
}

func withInteractive(t *testing.T, interactive bool) {
	t.Helper()
	orig := isInteractive
	isInteractive = func() bool { return interactive }
	t.Cleanup(func() { isInteractive = orig })
}

func TestPublishBootstrapAdminToOutputFile(t *testing.T) {
	withInteractive(t, true)
	cfg := config.Default()
	cfg.Auth.Bootstrap.OutputFile = filepath.Join(t.TempDir(), "creds", "admin.yaml")
	logger := log.NewTestLogger()

	require.NoError(t, publishBootstrapAdmin(bootstrapResult(), cfg, logger))

	creds, err := client.LoadCredentials(cfg.Auth.Bootstrap.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "admin", creds.ClientID)
	assert.Equal(t, "0123abcd", creds.SharedKey)
	assert.Equal(t, "http://localhost:8088", creds.Server)
	assert.True(t, logger.AssertLoggedWithField(log.WarnLevel, "Bootstrap admin credentials written", "path", cfg.Auth.Bootstrap.OutputFile))
	assert.False(t, logger.AssertLogged(log.WarnLevel, "0123abcd"), "the shared key is never logged")
}

func TestPublishBootstrapAdminDefaultPath(t *testing.T) {
	withInteractive(t, false)
	cfg := config.Default()
	cfg.Store.DataDir = filepath.Join(t.TempDir(), "data")

	require.NoError(t, publishBootstrapAdmin(bootstrapResult(), cfg, log.NewTestLogger()))
	_, err := client.LoadCredentials(filepath.Join(filepath.Dir(cfg.Store.DataDir), credentialsFileName))
	assert.NoError(t, err)
}

func TestPublishBootstrapAdminSkipsExisting(t *testing.T) {
	withInteractive(t, false)
	cfg := config.Default()
	cfg.Store.DataDir = filepath.Join(t.TempDir(), "data")

	require.NoError(t, publishBootstrapAdmin(&auth.BootstrapResult{Created: false, Name: "admin"}, cfg, log.NewTestLogger()))
	_, err := client.LoadCredentials(filepath.Join(filepath.Dir(cfg.Store.DataDir), credentialsFileName))
	assert.Error(t, err)
}

func TestPrintCredentials(t *testing.T) {
	var buf bytes.Buffer
	printCredentials(&buf, &client.Credentials{Server: "http://localhost:8088", ClientID: "admin", SharedKey: "k"})
	assert.Contains(t, buf.String(), "Shared key: k")
	assert.Contains(t, buf.String(), "configurine login --server http://localhost:8088 --client-id admin")
}

func TestClientAddress(t *testing.T) {
	assert.Equal(t, "http://localhost:8088", clientAddress(":8088", false))
	assert.Equal(t, "https://localhost:8443", clientAddress("0.0.0.0:8443", true))
	assert.Equal(t, "http://config.internal:80", clientAddress("config.internal:80", false))
}
