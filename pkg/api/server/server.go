// Package server assembles the configurine REST and gRPC APIs, the admin bootstrap and the
// maintenance jobs into one process.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_auth "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/mac-/configurine/pkg/api/rest"
	"github.com/mac-/configurine/pkg/api/service"
	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/resolver"
	"github.com/mac-/configurine/pkg/store"
	"github.com/mac-/configurine/pkg/store/repos"
	"github.com/mac-/configurine/pkg/version"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// APIServer runs the configurine API.
type APIServer struct {
	options *Options
	logger  log.Logger

	store     store.Store
	authority *auth.Authority
	resolver  *resolver.Resolver
	services  rest.Services
	bootstrap *auth.BootstrapResult

	jobs   *Jobs
	health *health.Server

	grpcServer *grpc.Server
	httpServer *http.Server
	grpcAddr   net.Addr
	httpAddr   net.Addr

	startOnce  sync.Once
	stopOnce   sync.Once
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// New creates a new API server with the given options.
func New(opts ...Option) (*APIServer, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if options.EnableTLS && (options.TLSCertFile == "" || options.TLSKeyFile == "") {
		return nil, fmt.Errorf("TLS requires both a certificate and a key file")
	}

	logger := options.Logger
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	logger = logger.WithComponent("server")

	var recorder store.OpRecorder
	if options.Metrics != nil {
		recorder = options.Metrics
	}
	st := store.NewInstrumentedStore(options.Store, recorder, logger)

	s := &APIServer{
		options:    options,
		logger:     logger,
		store:      st,
		health:     health.NewServer(),
		shutdownCh: make(chan struct{}),
	}
	s.jobs = NewJobs(options.Metrics, options.Logger, 0)
	s.buildServices()
	return s, nil
}

func (s *APIServer) buildServices() {
	o := s.options
	var repoOpts []repos.Option
	if o.Cipher != nil {
		repoOpts = append(repoOpts, repos.WithCipher(o.Cipher))
	}

	s.authority = o.Authority
	if s.authority == nil {
		authOpts := append([]auth.AuthorityOption{
			auth.WithLogger(o.Logger),
			auth.WithMetrics(o.Metrics),
		}, o.AuthorityOptions...)
		s.authority = auth.NewAuthority(repos.NewClientRepo(s.store, repoOpts...), crypto.NewSigner(), authOpts...)
	}

	configRepo := repos.NewConfigRepo(s.store, repoOpts...)
	tagTypes := repos.NewTagTypeRepo(s.store, repoOpts...)
	s.resolver = resolver.New(configRepo, tagTypes, resolver.WithLogger(o.Logger), resolver.WithMetrics(o.Metrics))

	s.services = rest.Services{
		Configs:  service.NewConfigService(configRepo, s.resolver, s.authority, o.Logger),
		Clients:  service.NewClientService(s.authority, o.Logger),
		TagTypes: service.NewTagTypeService(tagTypes, s.resolver, o.Logger),
		Tokens:   service.NewTokenService(s.authority),
		Health:   service.NewHealthService(s.store, o.Logger),
	}
}

// Start connects the store, bootstraps an admin when none exists and starts serving.
func (s *APIServer) Start() error {
	var err error
	s.startOnce.Do(func() { err = s.start() })
	return err
}

func (s *APIServer) start() error {
	s.logger.Info("Starting configurine server", log.Str("version", version.Version))

	ctx, cancel := context.WithTimeout(context.Background(), s.options.StartTimeout)
	defer cancel()

	if err := s.store.Open(ctx); err != nil {
		return fmt.Errorf("failed to connect store: %w", err)
	}

	if !s.options.DisableBootstrap {
		result, err := s.authority.EnsureAdmin(ctx)
		if err != nil {
			return fmt.Errorf("admin bootstrap failed: %w", err)
		}
		s.bootstrap = result
		if result.Created && s.options.OnBootstrap != nil {
			if err := s.options.OnBootstrap(result); err != nil {
				return fmt.Errorf("failed to hand off bootstrap credentials: %w", err)
			}
		}
	}

	if err := s.resolver.Refresh(ctx); err != nil {
		s.logger.Warn("Initial tag priority load failed; retrying on first resolution", log.Err(err))
	}

	if err := s.scheduleJobs(); err != nil {
		return err
	}

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start REST server: %w", err)
	}
	if err := s.startGRPCServer(); err != nil {
		_ = s.httpServer.Close()
		return fmt.Errorf("failed to start gRPC server: %w", err)
	}

	s.jobs.Start()
	_ = s.checkHealth(ctx)

	if s.options.HandleSignals {
		go s.handleSignals()
	}
	return nil
}

func (s *APIServer) scheduleJobs() error {
	o := s.options
	if err := s.jobs.Add(JobCachePurge, o.CachePurgeSchedule, func(context.Context) error {
		if n := s.authority.PurgeCaches(); n > 0 {
			s.logger.Debug("Purged expired credential cache entries", log.Int("count", n))
		}
		return nil
	}); err != nil {
		return err
	}
	if err := s.jobs.Add(JobPriorityRefresh, o.PriorityRefreshSchedule, s.resolver.Refresh); err != nil {
		return err
	}
	return s.jobs.Add(JobStoreHealth, o.HealthCheckSchedule, func(ctx context.Context) error {
		return s.checkHealth(ctx)
	})
}

// checkHealth publishes the store status on the gRPC health service.
func (s *APIServer) checkHealth(ctx context.Context) error {
	report := s.services.Health.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	var err error
	if !report.Healthy() {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		err = fmt.Errorf("store %s: %s", report.Store, report.StoreError)
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ConfigServiceName, st)
	return err
}

func (s *APIServer) tlsConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.options.TLSCertFile, s.options.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func (s *APIServer) startHTTPServer() error {
	handler, err := rest.NewHandler(s.services, s.options.Metrics, s.options.Logger).HTTPHandler(s.options.RequestTimeout)
	if err != nil {
		return err
	}

	lis, err := net.Listen("tcp", s.options.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.HTTPAddr, err)
	}
	if s.options.EnableTLS {
		cfg, err := s.tlsConfig()
		if err != nil {
			lis.Close()
			return err
		}
		lis = tls.NewListener(lis, cfg)
	}
	s.httpAddr = lis.Addr()
	s.httpServer = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: s.options.RequestTimeout,
		ErrorLog:          log.ToStdLogger(s.logger, log.WarnLevel),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Starting REST server", log.Str("address", s.httpAddr.String()))
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("REST server error", log.Err(err))
		}
	}()
	return nil
}

func (s *APIServer) startGRPCServer() error {
	lis, err := net.Listen("tcp", s.options.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.GRPCAddr, err)
	}

	var opts []grpc.ServerOption
	if s.options.EnableTLS {
		creds, err := credentials.NewServerTLSFromFile(s.options.TLSCertFile, s.options.TLSKeyFile)
		if err != nil {
			lis.Close()
			return fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}
	s.grpcServer = s.newGRPCServer(opts...)
	s.grpcAddr = lis.Addr()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Starting gRPC server", log.Str("address", s.grpcAddr.String()))
		if err := s.grpcServer.Serve(lis); err != nil {
			s.logger.Error("gRPC server error", log.Err(err))
		}
	}()
	return nil
}

// newGRPCServer builds the gRPC server with its interceptors and services registered.
func (s *APIServer) newGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	logger := s.logger.WithComponent("grpc")
	authFunc := func(ctx context.Context) (context.Context, error) {
		return authenticateMD(ctx, s.services.Tokens, logger)
	}
	recoveryHandler := func(ctx context.Context, p interface{}) error {
		logger.Error("Panic in gRPC handler", log.Any("panic", p))
		return status.Error(codes.Internal, "internal error")
	}

	opts = append(opts, grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
		logUnaryInterceptor(logger, s.options.Metrics),
		grpc_recovery.UnaryServerInterceptor(grpc_recovery.WithRecoveryHandlerContext(recoveryHandler)),
		grpc_auth.UnaryServerInterceptor(authFunc),
	)))

	gs := grpc.NewServer(opts...)
	RegisterConfigServiceServer(gs, newGRPCConfigServer(s.services.Configs, s.services.Tokens, logger))
	healthpb.RegisterHealthServer(gs, s.health)
	reflection.Register(gs)
	return gs
}

// Stop stops the API server gracefully. It is safe to call more than once.
func (s *APIServer) Stop() error {
	var err error
	s.stopOnce.Do(func() { err = s.stop() })
	return err
}

func (s *APIServer) stop() error {
	s.logger.Info("Stopping configurine server")
	close(s.shutdownCh)

	s.jobs.Stop()
	s.health.Shutdown()

	if s.grpcServer != nil {
		s.logger.Info("Stopping gRPC server")
		s.grpcServer.GracefulStop()
	}

	var errs []error
	if s.httpServer != nil {
		s.logger.Info("Stopping REST server")
		ctx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("Error shutting down REST server", log.Err(err))
			errs = append(errs, err)
		}
	}

	s.wg.Wait()

	if err := s.store.Close(); err != nil {
		s.logger.Error("Error closing store", log.Err(err))
		errs = append(errs, err)
	}
	s.logger.Info("Configurine server stopped")
	return errors.Join(errs...)
}

// Done is closed once Stop begins.
func (s *APIServer) Done() <-chan struct{} {
	return s.shutdownCh
}

// handleSignals handles OS signals for graceful shutdown.
func (s *APIServer) handleSignals() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		s.logger.Info("Received signal", log.Str("signal", sig.String()))
		_ = s.Stop()
	case <-s.shutdownCh:
	}
}

// HTTPAddr returns the bound REST address once started.
func (s *APIServer) HTTPAddr() net.Addr { return s.httpAddr }

// GRPCAddr returns the bound gRPC address once started.
func (s *APIServer) GRPCAddr() net.Addr { return s.grpcAddr }

// Authority returns the server's Authority.
func (s *APIServer) Authority() *auth.Authority { return s.authority }

// Bootstrap returns the admin bootstrap outcome, or nil if bootstrap was disabled.
func (s *APIServer) Bootstrap() *auth.BootstrapResult { return s.bootstrap }

// GetStore returns the store instance.
func (s *APIServer) GetStore() store.Store {
	return s.store
}
