package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mac-/configurine/internal/config"
	"github.com/mac-/configurine/pkg/api/client"
	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/log"
	"golang.org/x/term"
)

const credentialsFileName = "admin-credentials.yaml"

// isInteractive reports whether stdout is a terminal.
var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// publishBootstrapAdmin hands the generated admin credentials to the operator. The shared key
// is shown once and never logged: it goes to the configured output file, to the terminal when
// one is attached, or to a file next to the data directory otherwise.
func publishBootstrapAdmin(res *auth.BootstrapResult, cfg *config.Config, logger log.Logger) error {
	if res == nil || !res.Created || res.Client == nil {
		return nil
	}

	creds := &client.Credentials{
		Server:    clientAddress(cfg.Server.HTTPAddr, cfg.Server.TLS.Enabled),
		ClientID:  res.Client.Name,
		Email:     res.Client.Email,
		SharedKey: res.Client.SharedKey,
		IsAdmin:   true,
	}

	path := cfg.Auth.Bootstrap.OutputFile
	if path == "" && isInteractive() {
		printCredentials(os.Stdout, creds)
		logger.Info("Bootstrap admin created", log.Client(creds.ClientID))
		return nil
	}
	if path == "" {
		path = defaultCredentialsPath(cfg)
	}

	if err := creds.Save(path); err != nil {
		return err
	}
	logger.Warn("Bootstrap admin credentials written; move them somewhere safe",
		log.Client(creds.ClientID), log.Str("path", path))
	return nil
}

func defaultCredentialsPath(cfg *config.Config) string {
	if cfg.Store.DataDir != "" {
		return filepath.Join(filepath.Dir(cfg.Store.DataDir), credentialsFileName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return credentialsFileName
	}
	return filepath.Join(home, ".configurine", credentialsFileName)
}

func printCredentials(w io.Writer, creds *client.Credentials) {
	fmt.Fprintln(w, "No clients found. Created the initial admin client:")
	fmt.Fprintf(w, "  Client ID:  %s\n", creds.ClientID)
	fmt.Fprintf(w, "  Shared key: %s\n", creds.SharedKey)
	fmt.Fprintln(w, "This key is not shown again. Log in with:")
	fmt.Fprintf(w, "  configurine login --server %s --client-id %s\n", creds.Server, creds.ClientID)
}

// clientAddress turns a listen address such as ":8088" into one a client can dial.
func clientAddress(listen string, useTLS bool) string {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	if i := strings.Index(listen, "://"); i >= 0 {
		listen = listen[i+3:]
	}
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	if strings.HasPrefix(listen, "0.0.0.0:") {
		listen = "localhost" + strings.TrimPrefix(listen, "0.0.0.0")
	}
	return scheme + "://" + listen
}
