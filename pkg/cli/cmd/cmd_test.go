package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/api/rest"
	"github.com/mac-/configurine/pkg/api/service"
	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/cli/format"
	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/resolver"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/store/repos"
	"github.com/mac-/configurine/pkg/types"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	format.EnableColor(false)
	pterm.DisableStyling()
	os.Exit(m.Run())
}

type cliEnv struct {
	server    *httptest.Server
	authority *auth.Authority
	adminKey  string
	cfgPath   string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	logger := log.NewTestLogger()
	st := store.NewMemoryStore()
	authority := auth.NewAuthority(repos.NewClientRepo(st), crypto.NewSigner(), auth.WithLogger(logger))
	tagTypes := repos.NewTagTypeRepo(st)
	configRepo := repos.NewConfigRepo(st)
	res := resolver.New(configRepo, tagTypes, resolver.WithLogger(logger))

	h := rest.NewHandler(rest.Services{
		Configs:  service.NewConfigService(configRepo, res, authority, logger),
		Clients:  service.NewClientService(authority, logger),
		TagTypes: service.NewTagTypeService(tagTypes, res, logger),
		Tokens:   service.NewTokenService(authority),
		Health:   service.NewHealthService(st, logger),
	}, nil, logger)
	handler, err := h.HTTPHandler(5 * time.Second)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	boot, err := authority.EnsureAdmin(context.Background())
	require.NoError(t, err)
	require.True(t, boot.Created)

	for _, key := range []string{"CONFIGURINE_SERVER", "CONFIGURINE_TOKEN", "CONFIGURINE_CONTEXT", "CONFIGURINE_OUTPUT"} {
		t.Setenv(key, "")
	}

	return &cliEnv{
		server:    srv,
		authority: authority,
		adminKey:  boot.Client.SharedKey,
		cfgPath:   filepath.Join(t.TempDir(), "cli.yaml"),
	}
}

// run executes the CLI with stdin as input and returns stdout.
func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	opts := &cliOptions{in: strings.NewReader(stdin), now: time.Now}
	root := newRootCmd(opts)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--cli-config", e.cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, "", args...)
	if err != nil {
		t.Fatalf("configurine %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func (e *cliEnv) loginAdmin(t *testing.T) {
	t.Helper()
	_, err := e.run(t, e.adminKey+"\n", "login", "--server", e.server.URL, "--client-id", "admin", "--save-key")
	require.NoError(t, err)
}

func TestLoginStoresContext(t *testing.T) {
	env := newCLIEnv(t)
	out, err := env.run(t, env.adminKey+"\n", "login", "--server", env.server.URL, "--client-id", "admin")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as admin")

	cfg, err := loadContextConfig(env.cfgPath)
	require.NoError(t, err)
	ctx := cfg.Contexts[defaultContextName]
	assert.Equal(t, env.server.URL, ctx.Server)
	assert.Equal(t, "admin", ctx.ClientID)
	assert.NotEmpty(t, ctx.Token)
	assert.Empty(t, ctx.SharedKey, "the key is only kept with --save-key")

	info, err := os.Stat(env.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = env.run(t, "wrong\n", "login", "--client-id", "admin")
	assert.Equal(t, format.ExitUnauthorized, format.ExitCode(err))
}

func TestLoginWithCredentialsFile(t *testing.T) {
	env := newCLIEnv(t)
	credsPath := filepath.Join(t.TempDir(), "admin.yaml")
	require.NoError(t, (&client.Credentials{Server: env.server.URL, ClientID: "admin", SharedKey: env.adminKey}).Save(credsPath))

	out := env.mustRun(t, "login", "--credentials-file", credsPath, "--save-key")
	assert.Contains(t, out, "Logged in as admin")

	cfg, err := loadContextConfig(env.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, env.adminKey, cfg.Contexts[defaultContextName].SharedKey)
}

func TestExpiredTokenIsRenewed(t *testing.T) {
	env := newCLIEnv(t)
	cfg := &ContextConfig{CurrentContext: "prod", Contexts: map[string]Context{
		"prod": {Server: env.server.URL, ClientID: "admin", SharedKey: env.adminKey, Token: "admin:1:2:stale"},
	}}
	require.NoError(t, saveContextConfig(env.cfgPath, cfg))

	out := env.mustRun(t, "tagtype", "list")
	assert.Contains(t, out, "No tag types defined")

	cfg, err := loadContextConfig(env.cfgPath)
	require.NoError(t, err)
	renewed := cfg.Contexts["prod"].Token
	assert.NotEqual(t, "admin:1:2:stale", renewed)
	expiry, err := client.TokenExpiry(renewed)
	require.NoError(t, err)
	assert.True(t, expiry.After(time.Now()))
}

func TestConfigCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.loginAdmin(t)

	env.mustRun(t, "tagtype", "create", "environment", "--priority", "10")
	env.mustRun(t, "tagtype", "create", "region", "-p", "20")
	out := env.mustRun(t, "tagtype", "update", "region", "-p", "5")
	assert.Contains(t, out, "Tag type region has priority 5")

	out = env.mustRun(t, "config", "create", "--name", "db.host", "--value", "prod-db",
		"--tag", "environment:production", "--env", "production", "-o", "json")
	var created types.ConfigEntry
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "admin", created.Owner)

	out = env.mustRun(t, "config", "resolve", "db.host", "--tag", "environment:production", "--value-only")
	assert.Equal(t, "prod-db\n", out)

	out = env.mustRun(t, "config", "list", "--name", "db.host", "--env", "production", "--active", "true", "-o", "json")
	var listed []types.ConfigEntry
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	out = env.mustRun(t, "config", "list", "--name", "db.host")
	assert.Contains(t, out, created.ID)
	assert.Contains(t, out, "environment:production")

	env.mustRun(t, "config", "update", created.ID, "--value", "42")
	out = env.mustRun(t, "config", "get", created.ID, "-o", "json")
	var got types.ConfigEntry
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Value.Equal(types.IntValue(42)))
	assert.Equal(t, []types.Tag{{Type: "environment", Value: "production"}}, got.Tags, "unchanged fields are kept")

	out = env.mustRun(t, "config", "get", created.ID, "-o", "yaml")
	assert.Contains(t, out, "value: 42")

	env.mustRun(t, "config", "delete", created.ID)
	_, err := env.run(t, "", "config", "get", created.ID)
	assert.Equal(t, format.ExitNotFound, format.ExitCode(err))
}

func TestConfigCreateFromFile(t *testing.T) {
	env := newCLIEnv(t)
	env.loginAdmin(t)
	env.mustRun(t, "tagtype", "create", "environment", "-p", "1")

	path := filepath.Join(t.TempDir(), "entry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: limits
value:
  rps: 100
  burst: [1, 2]
tags:
  - type: environment
    value: staging
isSensitive: true
`), 0o600))

	out := env.mustRun(t, "config", "create", "-f", path, "-o", "json")
	var created types.ConfigEntry
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.True(t, created.IsActive, "entries from files default to active")
	assert.True(t, created.IsSensitive)
	rps, ok := created.Value.Get("rps")
	require.True(t, ok)
	assert.True(t, rps.Equal(types.IntValue(100)))

	out = env.mustRun(t, "config", "get", created.ID)
	assert.Contains(t, out, "********", "sensitive values are masked in tables")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: x\nvalue: [1, 2\n"), 0o600))
	_, err := env.run(t, "", "config", "create", "-f", bad)
	assert.Equal(t, format.ExitUsage, format.ExitCode(err))

	_, err = env.run(t, "", "config", "create", "--name", "novalue")
	assert.Equal(t, format.ExitUsage, format.ExitCode(err))
}

func TestResolveConflictExitCode(t *testing.T) {
	env := newCLIEnv(t)
	env.loginAdmin(t)
	env.mustRun(t, "tagtype", "create", "environment", "-p", "1")
	env.mustRun(t, "config", "create", "--name", "flag", "--value", "true", "--tag", "environment:prod")
	env.mustRun(t, "config", "create", "--name", "flag", "--value", "false", "--tag", "environment:prod")

	_, err := env.run(t, "", "config", "resolve", "flag", "--tag", "environment:prod")
	require.Error(t, err)
	assert.Equal(t, format.ExitConflict, format.ExitCode(err))

	var buf bytes.Buffer
	format.PrintError(&buf, err)
	assert.Contains(t, buf.String(), "Entries with equal relevance")
}

func TestClientCommands(t *testing.T) {
	env := newCLIEnv(t)
	env.loginAdmin(t)

	out := env.mustRun(t, "client", "register", "billing", "--email", "billing@example.com")
	assert.Contains(t, out, "Registered client billing")
	assert.Contains(t, out, "Shared key:")
	assert.Contains(t, out, "An admin must confirm")

	out = env.mustRun(t, "client", "list")
	assert.Contains(t, out, "billing")
	assert.Contains(t, out, "unconfirmed")

	env.mustRun(t, "client", "update", "billing", "--confirmed")
	out = env.mustRun(t, "client", "get", "billing", "-o", "json")
	var view types.ClientView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.True(t, view.IsConfirmed)
	assert.False(t, view.IsAdmin)

	env.mustRun(t, "client", "delete", "billing")
	_, err := env.run(t, "", "client", "get", "billing")
	assert.Equal(t, format.ExitNotFound, format.ExitCode(err))
}

func TestContextCommands(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "", "context", "set", "staging")
	assert.Equal(t, format.ExitUsage, format.ExitCode(err), "a new context needs a server")

	env.mustRun(t, "context", "set", "staging", "--server", "http://staging:8088", "--client-id", "ops")
	env.mustRun(t, "context", "set", "prod", "--server", "https://prod:8088")

	out := env.mustRun(t, "context", "list")
	assert.Contains(t, out, "staging")
	assert.Contains(t, out, "https://prod:8088")

	env.mustRun(t, "context", "use", "staging")
	out = env.mustRun(t, "context", "view")
	assert.Contains(t, out, "Context: staging")
	assert.Contains(t, out, "Client: ops")

	_, err = env.run(t, "", "context", "delete", "staging")
	assert.Equal(t, format.ExitUsage, format.ExitCode(err), "the current context cannot be deleted")
	env.mustRun(t, "context", "delete", "prod")

	_, err = env.run(t, "", "context", "use", "prod")
	assert.Equal(t, format.ExitNotFound, format.ExitCode(err))
}

func TestHealthAndVersion(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "--server", env.server.URL, "health")
	assert.Contains(t, out, "Status: ok")

	out = env.mustRun(t, "--server", env.server.URL, "version")
	assert.Contains(t, out, "Client:")
	assert.Contains(t, out, "Server:")

	out = env.mustRun(t, "version", "--client")
	assert.NotContains(t, out, "Server:")
}

func TestUsageErrors(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "", "config", "list", "--no-such-flag")
	assert.Equal(t, format.ExitUsage, format.ExitCode(err))

	_, err = env.run(t, "", "--server", env.server.URL, "tagtype", "list", "-o", "xml")
	assert.Equal(t, format.ExitUsage, format.ExitCode(err))

	_, err = env.run(t, "", "--server", env.server.URL, "config", "resolve", "x", "--tag", "broken")
	assert.Equal(t, format.ExitUsage, format.ExitCode(err))
}

func TestParseValue(t *testing.T) {
	v, err := parseValue("42", "auto")
	require.NoError(t, err)
	assert.True(t, v.Equal(types.IntValue(42)))

	v, err = parseValue("hello world", "auto")
	require.NoError(t, err)
	assert.True(t, v.Equal(types.StringValue("hello world")))

	v, err = parseValue("42", "string")
	require.NoError(t, err)
	assert.True(t, v.Equal(types.StringValue("42")))

	_, err = parseValue("{bad", "json")
	assert.True(t, types.IsValidationError(err))

	_, err = parseValue("x", "xml")
	assert.Error(t, err)
}
