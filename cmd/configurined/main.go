package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mac-/configurine/internal/config"
	"github.com/mac-/configurine/pkg/api/server"
	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/cache"
	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/metrics"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/version"
)

// daemonFlags holds the command line. Values set here override the environment and the
// config file.
type daemonFlags struct {
	configFile      string
	grpcAddr        string
	httpAddr        string
	dataDir         string
	storeDriver     string
	logLevel        string
	logFormat       string
	debug           bool
	bootstrapOutput string
	noBootstrap     bool
	showHelp        bool
	showVersion     bool

	// visited records which flags were given explicitly.
	visited map[string]bool
}

func newFlagSet(f *daemonFlags, output io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("configurined", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&f.configFile, "config", "", "Configuration file path")
	fs.StringVar(&f.grpcAddr, "grpc-addr", "", fmt.Sprintf("gRPC server address (default :%d)", config.DefaultGRPCPort))
	fs.StringVar(&f.httpAddr, "http-addr", "", fmt.Sprintf("HTTP server address (default :%d)", config.DefaultHTTPPort))
	fs.StringVar(&f.dataDir, "data-dir", "", "Data directory for the badger store")
	fs.StringVar(&f.storeDriver, "store", "", "Store driver (badger, redis, mysql, memory)")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug mode (shorthand for --log-level=debug)")
	fs.StringVar(&f.bootstrapOutput, "bootstrap-output", "", "Write the bootstrap admin credentials to this file")
	fs.BoolVar(&f.noBootstrap, "no-bootstrap", false, "Do not create an admin client on an empty store")
	fs.BoolVar(&f.showHelp, "help", false, "Show help")
	fs.BoolVar(&f.showVersion, "version", false, "Show version")
	return fs
}

func parseFlags(args []string, output io.Writer) (*daemonFlags, *flag.FlagSet, error) {
	f := &daemonFlags{visited: make(map[string]bool)}
	fs := newFlagSet(f, output)
	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	fs.Visit(func(fl *flag.Flag) {
		f.visited[fl.Name] = true
	})
	return f, fs, nil
}

// applyFlags overlays explicitly set flags on cfg.
func applyFlags(cfg *config.Config, f *daemonFlags) {
	if f.visited["grpc-addr"] {
		cfg.Server.GRPCAddr = f.grpcAddr
	}
	if f.visited["http-addr"] {
		cfg.Server.HTTPAddr = f.httpAddr
	}
	if f.visited["data-dir"] {
		cfg.Store.DataDir = filepath.Join(f.dataDir, "data")
	}
	if f.visited["store"] {
		cfg.Store.Driver = f.storeDriver
	}
	if f.visited["log-level"] {
		cfg.Log.Level = f.logLevel
	}
	if f.visited["log-format"] {
		cfg.Log.Format = f.logFormat
	}
	if f.debug {
		cfg.Log.Level = "debug"
	}
	if f.visited["bootstrap-output"] {
		cfg.Auth.Bootstrap.OutputFile = f.bootstrapOutput
	}
	if f.noBootstrap {
		cfg.Auth.Bootstrap.Enabled = false
	}
}

// authorityOptions builds the credential caches and token settings from cfg.
func authorityOptions(cfg *config.Config, m *metrics.Metrics, logger log.Logger) []auth.AuthorityOption {
	keyCache := cache.New[string](cache.Options{
		MaxSize:        cfg.Auth.KeyCacheSize,
		CanPutWhenFull: cfg.Auth.CanPutWhenFull,
		DefaultTTL:     cfg.Auth.CacheTTL,
		Recorder:       m.CacheRecorder("keys"),
	})
	adminCache := cache.New[auth.AdminFacts](cache.Options{
		MaxSize:        cfg.Auth.AdminCacheSize,
		CanPutWhenFull: cfg.Auth.CanPutWhenFull,
		DefaultTTL:     cfg.Auth.CacheTTL,
		Recorder:       m.CacheRecorder("admins"),
	})
	return []auth.AuthorityOption{
		auth.WithLogger(logger),
		auth.WithMetrics(m),
		auth.WithTokenExpiration(cfg.Auth.TokenExpiration),
		auth.WithTimestampTolerance(cfg.Auth.TimestampTolerance),
		auth.WithCacheTTL(cfg.Auth.CacheTTL),
		auth.WithKeyCache(keyCache),
		auth.WithAdminCache(adminCache),
		auth.WithBootstrapAdmin(cfg.Auth.Bootstrap.AdminName, cfg.Auth.Bootstrap.AdminEmail),
	}
}

// loadCipher returns nil when at-rest encryption of client keys is disabled.
func loadCipher(cfg *config.Config, logger log.Logger) (*crypto.AEADCipher, error) {
	if !cfg.Encryption.Enabled {
		return nil, nil
	}
	kek, err := crypto.LoadOrGenerateKEK(cfg.KEKOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}
	cipher, err := crypto.NewAEADCipher(kek)
	if err != nil {
		return nil, err
	}
	logger.Info("Client key encryption enabled", log.Str("kek_source", cfg.Encryption.KEK.Source))
	return cipher, nil
}

// serverOptions assembles everything the API server needs from cfg.
func serverOptions(cfg *config.Config, st store.Store, m *metrics.Metrics, cipher *crypto.AEADCipher, logger log.Logger) []server.Option {
	opts := []server.Option{
		server.WithGRPCAddr(cfg.Server.GRPCAddr),
		server.WithHTTPAddr(cfg.Server.HTTPAddr),
		server.WithStore(st),
		server.WithLogger(logger),
		server.WithMetrics(m),
		server.WithAuthorityOptions(authorityOptions(cfg, m, logger)...),
		server.WithTimeouts(cfg.Server.RequestTimeout, cfg.Server.ShutdownTimeout),
		server.WithSchedules(cfg.Cache.PurgeSchedule, cfg.Resolver.PriorityRefresh, cfg.Health.Schedule),
		server.WithBootstrap(cfg.Auth.Bootstrap.Enabled, func(res *auth.BootstrapResult) error {
			return publishBootstrapAdmin(res, cfg, logger)
		}),
	}
	if cipher != nil {
		opts = append(opts, server.WithCipher(cipher))
	}
	if cfg.Server.TLS.Enabled {
		opts = append(opts, server.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}
	return opts
}

func run(args []string, stdout, stderr io.Writer) int {
	f, fs, err := parseFlags(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if f.showHelp {
		fs.Usage()
		return 0
	}
	if f.showVersion {
		fmt.Fprintln(stdout, version.Info())
		return 0
	}

	cfg, err := config.Load(f.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	applyFlags(cfg, f)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logger, err := log.ApplyConfig(&cfg.Log)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log configuration: %v\n", err)
		return 1
	}
	log.SetDefaultLogger(logger)
	logger.Info("Starting configurine server",
		log.Str("version", version.Version),
		log.Str("store", cfg.Store.Driver),
		log.Str("grpc", cfg.Server.GRPCAddr),
		log.Str("http", cfg.Server.HTTPAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received signal", log.Str("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	if strings.EqualFold(cfg.Store.Driver, store.DriverBadger) && !cfg.Store.InMemory {
		if err := os.MkdirAll(cfg.Store.DataDir, 0o755); err != nil {
			logger.Error("Failed to create data directory", log.Str("path", cfg.Store.DataDir), log.Err(err))
			return 1
		}
	}

	st, err := store.New(cfg.Store, logger)
	if err != nil {
		logger.Error("Failed to create store", log.Err(err))
		return 1
	}

	cipher, err := loadCipher(cfg, logger)
	if err != nil {
		logger.Error("Failed to set up encryption", log.Err(err))
		return 1
	}

	m := metrics.New()
	apiServer, err := server.New(serverOptions(cfg, st, m, cipher, logger)...)
	if err != nil {
		logger.Error("Failed to create API server", log.Err(err))
		return 1
	}

	if err := apiServer.Start(); err != nil {
		logger.Error("Failed to start API server", log.Err(err))
		_ = apiServer.Stop()
		return 1
	}

	select {
	case <-ctx.Done():
	case <-apiServer.Done():
	}

	if err := apiServer.Stop(); err != nil {
		logger.Error("Failed to stop API server", log.Err(err))
		return 1
	}
	logger.Info("configurine server stopped")
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
