package server

import (
	"time"

	"github.com/mac-/configurine/pkg/auth"
	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/metrics"
	"github.com/mac-/configurine/pkg/store"
)

// Options defines configuration options for the API server.
type Options struct {
	// GRPCAddr is the address to listen on for gRPC connections.
	GRPCAddr string

	// HTTPAddr is the address to listen on for REST requests.
	HTTPAddr string

	// TLSCertFile is the path to the TLS certificate file.
	TLSCertFile string

	// TLSKeyFile is the path to the TLS key file.
	TLSKeyFile string

	// EnableTLS serves both listeners over TLS.
	EnableTLS bool

	// Store is the document store. Required.
	Store store.Store

	// Logger is the logger to use.
	Logger log.Logger

	// Metrics receives server metrics. Nil disables /metrics.
	Metrics *metrics.Metrics

	// Authority authenticates clients. When nil one is built over Store.
	Authority *auth.Authority

	// AuthorityOptions configure the Authority built when Authority is nil.
	AuthorityOptions []auth.AuthorityOption

	// Cipher encrypts sensitive values and client keys at rest when set.
	Cipher *crypto.AEADCipher

	// RequestTimeout bounds each REST request.
	RequestTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// StartTimeout bounds the store connection and admin bootstrap at startup.
	StartTimeout time.Duration

	// Cron schedules of the maintenance jobs. Empty disables a job.
	CachePurgeSchedule      string
	PriorityRefreshSchedule string
	HealthCheckSchedule     string

	// DisableBootstrap skips creating an admin client on an empty store.
	DisableBootstrap bool

	// OnBootstrap is called with the new admin when one was created.
	OnBootstrap func(*auth.BootstrapResult) error

	// HandleSignals stops the server on SIGINT or SIGTERM.
	HandleSignals bool
}

// DefaultOptions returns the default options for the API server.
func DefaultOptions() *Options {
	return &Options{
		GRPCAddr:                ":8089",
		HTTPAddr:                ":8088",
		RequestTimeout:          30 * time.Second,
		ShutdownTimeout:         10 * time.Second,
		StartTimeout:            30 * time.Second,
		CachePurgeSchedule:      "@every 1m",
		PriorityRefreshSchedule: "@every 5m",
		HealthCheckSchedule:     "@every 30s",
	}
}

// Option is a function that configures the API server options.
type Option func(*Options)

// WithGRPCAddr sets the gRPC address.
func WithGRPCAddr(addr string) Option {
	return func(o *Options) {
		o.GRPCAddr = addr
	}
}

// WithHTTPAddr sets the REST address.
func WithHTTPAddr(addr string) Option {
	return func(o *Options) {
		o.HTTPAddr = addr
	}
}

// WithTLS enables TLS with the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(o *Options) {
		o.TLSCertFile = certFile
		o.TLSKeyFile = keyFile
		o.EnableTLS = true
	}
}

// WithStore sets the document store.
func WithStore(store store.Store) Option {
	return func(o *Options) {
		o.Store = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithAuthority uses a prebuilt Authority instead of building one.
func WithAuthority(a *auth.Authority) Option {
	return func(o *Options) {
		o.Authority = a
	}
}

// WithAuthorityOptions configures the Authority the server builds.
func WithAuthorityOptions(opts ...auth.AuthorityOption) Option {
	return func(o *Options) {
		o.AuthorityOptions = append(o.AuthorityOptions, opts...)
	}
}

// WithCipher encrypts sensitive fields at rest.
func WithCipher(c *crypto.AEADCipher) Option {
	return func(o *Options) {
		o.Cipher = c
	}
}

// WithTimeouts sets the request and shutdown timeouts. Zero keeps the current value.
func WithTimeouts(request, shutdown time.Duration) Option {
	return func(o *Options) {
		if request > 0 {
			o.RequestTimeout = request
		}
		if shutdown > 0 {
			o.ShutdownTimeout = shutdown
		}
	}
}

// WithSchedules sets the maintenance job schedules.
func WithSchedules(cachePurge, priorityRefresh, healthCheck string) Option {
	return func(o *Options) {
		o.CachePurgeSchedule = cachePurge
		o.PriorityRefreshSchedule = priorityRefresh
		o.HealthCheckSchedule = healthCheck
	}
}

// WithBootstrap enables admin bootstrap and registers a callback for new credentials.
func WithBootstrap(enabled bool, onCreated func(*auth.BootstrapResult) error) Option {
	return func(o *Options) {
		o.DisableBootstrap = !enabled
		o.OnBootstrap = onCreated
	}
}

// WithSignalHandling stops the server on SIGINT or SIGTERM.
func WithSignalHandling() Option {
	return func(o *Options) {
		o.HandleSignals = true
	}
}
