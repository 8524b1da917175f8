package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mac-/configurine/internal/config"
	"github.com/mac-/configurine/pkg/api/client"
)

// tokenRefreshMargin renews a stored token this long before it expires.
const tokenRefreshMargin = 30 * time.Second

func defaultServer() string {
	return fmt.Sprintf("http://localhost:%d", config.DefaultHTTPPort)
}

// newAPIClient builds a client for the active context. Address and token precedence is flag,
// then environment, then context. When the context stores a shared key and its token is
// missing or about to expire, a new token is fetched and saved back to the context.
func (o *cliOptions) newAPIClient(errOut io.Writer) (*client.Client, error) {
	path := o.contextPath()
	cfg, err := loadContextConfig(path)
	if err != nil {
		return nil, err
	}
	name, ctx := o.activeContext(cfg)

	server := o.server()
	if server == "" {
		server = ctx.Server
	}
	if server == "" {
		server = defaultServer()
	}

	token := o.token()
	explicitToken := token != ""
	if !explicitToken {
		token = ctx.Token
	}

	c, err := client.NewClient(&client.ClientOptions{
		Address:     server,
		UseTLS:      strings.HasPrefix(server, "https://"),
		TLSCertFile: ctx.TLSCertFile,
		Token:       token,
		CallTimeout: o.timeout(),
		Logger:      o.logger(errOut),
	})
	if err != nil {
		return nil, err
	}

	if explicitToken || ctx.ClientID == "" || ctx.SharedKey == "" || !o.tokenStale(token) {
		return c, nil
	}
	resp, err := client.NewAuthClient(c).Login(ctx.ClientID, ctx.SharedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token for context %s: %w", name, err)
	}
	ctx.Token = resp.AccessToken
	cfg.Contexts[name] = ctx
	if err := saveContextConfig(path, cfg); err != nil {
		return nil, err
	}
	return c, nil
}

func (o *cliOptions) tokenStale(token string) bool {
	if token == "" {
		return true
	}
	expiry, err := client.TokenExpiry(token)
	if err != nil {
		return true
	}
	return !o.now().Add(tokenRefreshMargin).Before(expiry)
}
