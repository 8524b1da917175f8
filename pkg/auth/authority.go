// Package auth implements client authentication, bearer tokens and access policy.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mac-/configurine/pkg/cache"
	"github.com/mac-/configurine/pkg/crypto"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/metrics"
	"github.com/mac-/configurine/pkg/types"
)

const (
	DefaultTokenExpiration    = 3600 * time.Second
	DefaultTimestampTolerance = 600 * time.Second
	DefaultCacheSize          = 100
	DefaultCacheTTL           = 300 * time.Second
	DefaultAdminName          = "admin"

	// maxEpochSeconds separates epoch seconds from epoch milliseconds. Any current time in
	// milliseconds is above it; seconds stay below it until the year 5138.
	maxEpochSeconds = 100_000_000_000

	privateKeyBytes = 20
)

// AdminFacts is what the admin cache remembers about a client.
type AdminFacts struct {
	IsAdmin     bool
	IsConfirmed bool
}

// Authority issues and validates bearer tokens and manages API clients.
type Authority struct {
	clients ClientStore
	signer  *crypto.Signer

	expiration time.Duration
	tolerance  time.Duration
	clock      func() time.Time
	logger     log.Logger
	metrics    *metrics.Metrics

	cacheTTL   time.Duration
	keyCache   *cache.Cache[string]
	adminCache *cache.Cache[AdminFacts]

	// generations counts evictions per client. A cache fill is dropped when the client was
	// evicted after the store read that produced it.
	genMu       sync.Mutex
	generations map[string]uint64

	adminName  string
	adminEmail string

	bootstrapOnce   sync.Once
	bootstrapResult *BootstrapResult
	bootstrapErr    error
}

// AuthorityOption configures an Authority.
type AuthorityOption func(*Authority)

// WithTokenExpiration sets the token lifetime. It is truncated to whole seconds.
func WithTokenExpiration(d time.Duration) AuthorityOption {
	return func(a *Authority) { a.expiration = d }
}

// WithTimestampTolerance sets the allowed clock skew of a handshake timestamp.
func WithTimestampTolerance(d time.Duration) AuthorityOption {
	return func(a *Authority) { a.tolerance = d }
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) AuthorityOption {
	return func(a *Authority) { a.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) AuthorityOption {
	return func(a *Authority) { a.logger = logger }
}

// WithMetrics reports authentication and cache activity.
func WithMetrics(m *metrics.Metrics) AuthorityOption {
	return func(a *Authority) { a.metrics = m }
}

// WithKeyCache replaces the private key cache.
func WithKeyCache(c *cache.Cache[string]) AuthorityOption {
	return func(a *Authority) { a.keyCache = c }
}

// WithAdminCache replaces the admin facts cache.
func WithAdminCache(c *cache.Cache[AdminFacts]) AuthorityOption {
	return func(a *Authority) { a.adminCache = c }
}

// WithCacheTTL sets how long cached keys and admin facts are trusted.
func WithCacheTTL(d time.Duration) AuthorityOption {
	return func(a *Authority) { a.cacheTTL = d }
}

// WithBootstrapAdmin sets the name and email used when EnsureAdmin creates an admin.
func WithBootstrapAdmin(name, email string) AuthorityOption {
	return func(a *Authority) {
		if name != "" {
			a.adminName = types.NormalizeClientName(name)
		}
		a.adminEmail = email
	}
}

// NewAuthority creates an Authority over the given client store.
func NewAuthority(clients ClientStore, signer *crypto.Signer, opts ...AuthorityOption) *Authority {
	a := &Authority{
		clients:    clients,
		signer:     signer,
		expiration: DefaultTokenExpiration,
		tolerance:  DefaultTimestampTolerance,
		clock:      time.Now,
		cacheTTL:   DefaultCacheTTL,
		adminName:  DefaultAdminName,

		generations: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.signer == nil {
		a.signer = crypto.NewSigner()
	}
	if a.logger == nil {
		a.logger = log.GetDefaultLogger()
	}
	a.logger = a.logger.WithComponent("auth")
	if a.keyCache == nil {
		a.keyCache = cache.New[string](cache.Options{
			MaxSize:        DefaultCacheSize,
			CanPutWhenFull: true,
			DefaultTTL:     a.cacheTTL,
			Clock:          a.clock,
			Recorder:       a.metrics.CacheRecorder("private_keys"),
		})
	}
	if a.adminCache == nil {
		a.adminCache = cache.New[AdminFacts](cache.Options{
			MaxSize:        DefaultCacheSize,
			CanPutWhenFull: true,
			DefaultTTL:     a.cacheTTL,
			Clock:          a.clock,
			Recorder:       a.metrics.CacheRecorder("admin_facts"),
		})
	}
	return a
}

// Authenticate checks a handshake and issues a token. The client signs "name:timestamp" with
// its shared key; timestamp is in epoch seconds.
func (a *Authority) Authenticate(ctx context.Context, name string, timestamp int64, signature string) (tok Token, err error) {
	defer func() { a.metrics.ObserveAuth("handshake", err) }()

	if name == "" {
		return Token{}, types.NewValidationError("client_id is required")
	}
	if signature == "" {
		return Token{}, types.NewValidationError("signature is required")
	}
	if timestamp <= 0 {
		return Token{}, types.NewValidationError("timestamp is required")
	}
	if timestamp >= maxEpochSeconds {
		return Token{}, types.NewValidationError("timestamp must be epoch seconds")
	}

	now := a.clock()
	skew := now.Unix() - timestamp
	if skew < 0 {
		skew = -skew
	}
	if skew > int64(a.tolerance/time.Second) {
		return Token{}, types.NewAuthError("timestamp is outside the acceptable bounds")
	}

	clientName := types.NormalizeClientName(name)
	gen := a.generation(clientName)
	client, err := a.clients.GetClient(ctx, clientName)
	if types.IsNotFoundError(err) {
		return Token{}, types.NewAuthError("unknown client %q", clientName)
	} else if err != nil {
		return Token{}, err
	}

	if !a.signer.Verify(HandshakeMessage(name, timestamp), client.SharedKey, signature) {
		a.logger.Debug("Handshake signature mismatch", log.Client(clientName))
		return Token{}, types.NewAuthError("unable to authenticate client")
	}

	issued := now.Unix()
	tok = Token{
		Name:      client.Name,
		IssuedAt:  issued,
		ExpiresAt: issued + int64(a.expiration/time.Second),
	}
	tok.Signature = a.signer.Sign(tok.Payload(), client.PrivateKey)
	a.remember(client, gen)
	a.metrics.TokenIssued()

	a.logger.Info("Token issued", log.Client(client.Name), log.Int64("expires_at", tok.ExpiresAt))
	return tok, nil
}

// ValidateToken checks a bearer token and returns the caller identity.
func (a *Authority) ValidateToken(ctx context.Context, raw string) (id *types.Identity, err error) {
	defer func() { a.metrics.ObserveAuth("token", err) }()

	tok, err := ParseToken(raw)
	if err != nil {
		return nil, err
	}
	if a.clock().Unix() > tok.ExpiresAt {
		return nil, types.NewAuthError("token expired")
	}

	key, err := a.privateKey(ctx, tok.Name)
	if err != nil {
		return nil, err
	}
	if !a.signer.Verify(tok.Payload(), key, tok.Signature) {
		return nil, types.NewAuthError("invalid token signature")
	}

	facts, err := a.adminFacts(ctx, tok.Name)
	if err != nil {
		return nil, err
	}
	return &types.Identity{Name: tok.Name, IsAdmin: facts.IsAdmin, IsConfirmed: facts.IsConfirmed}, nil
}

func (a *Authority) privateKey(ctx context.Context, name string) (string, error) {
	if key, ok := a.keyCache.Get(name); ok {
		return key, nil
	}
	client, err := a.loadClient(ctx, name)
	if err != nil {
		return "", err
	}
	return client.PrivateKey, nil
}

func (a *Authority) adminFacts(ctx context.Context, name string) (AdminFacts, error) {
	if facts, ok := a.adminCache.Get(name); ok {
		return facts, nil
	}
	client, err := a.loadClient(ctx, name)
	if err != nil {
		return AdminFacts{}, err
	}
	return AdminFacts{IsAdmin: client.IsAdmin, IsConfirmed: client.IsConfirmed}, nil
}

func (a *Authority) loadClient(ctx context.Context, name string) (*types.Client, error) {
	gen := a.generation(name)
	client, err := a.clients.GetClient(ctx, name)
	if types.IsNotFoundError(err) {
		return nil, types.NewAuthError("unknown client %q", name)
	} else if err != nil {
		return nil, err
	}
	a.remember(client, gen)
	return client, nil
}

func (a *Authority) generation(name string) uint64 {
	a.genMu.Lock()
	defer a.genMu.Unlock()
	return a.generations[name]
}

// remember caches what was read from the store at generation gen, unless the client was
// evicted since.
func (a *Authority) remember(c *types.Client, gen uint64) {
	a.genMu.Lock()
	defer a.genMu.Unlock()
	if a.generations[c.Name] != gen {
		return
	}
	a.keyCache.Put(c.Name, c.PrivateKey, a.cacheTTL)
	a.adminCache.Put(c.Name, AdminFacts{IsAdmin: c.IsAdmin, IsConfirmed: c.IsConfirmed}, a.cacheTTL)
}

func (a *Authority) evict(name string) {
	a.genMu.Lock()
	defer a.genMu.Unlock()
	a.generations[name]++
	a.keyCache.Delete(name)
	a.adminCache.Delete(name)
}

// AddClient registers a new, unconfirmed client with a fresh private key.
func (a *Authority) AddClient(ctx context.Context, spec types.ClientSpec) (*types.Client, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	privateKey, err := crypto.RandomHex(privateKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}
	client := &types.Client{
		Name:       spec.Name,
		Email:      spec.Email,
		SharedKey:  spec.SharedKey,
		PrivateKey: privateKey,
	}
	if err := a.clients.CreateClient(ctx, client); err != nil {
		return nil, err
	}
	a.logger.Info("Client registered", log.Client(client.Name))
	return client, nil
}

// UpdateClient applies a partial update and evicts the client from both caches.
func (a *Authority) UpdateClient(ctx context.Context, name string, update types.ClientUpdate) (*types.Client, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	name = types.NormalizeClientName(name)
	defer a.evict(name)

	client, err := a.clients.GetClient(ctx, name)
	if err != nil {
		return nil, err
	}
	if client.IsAdmin && update.IsAdmin != nil && !*update.IsAdmin {
		if err := a.requireOtherAdmin(ctx, name); err != nil {
			return nil, err
		}
	}
	update.Apply(client)
	if update.RotatePrivateKey {
		if client.PrivateKey, err = crypto.RandomHex(privateKeyBytes); err != nil {
			return nil, fmt.Errorf("failed to generate private key: %w", err)
		}
	}
	if err := a.clients.UpdateClient(ctx, client); err != nil {
		return nil, err
	}
	a.logger.Info("Client updated", log.Client(name), log.Bool("rotated_key", update.RotatePrivateKey))
	return client, nil
}

// requireOtherAdmin fails unless an admin other than name exists.
func (a *Authority) requireOtherAdmin(ctx context.Context, name string) error {
	all, err := a.clients.ListClients(ctx)
	if err != nil {
		return err
	}
	for _, c := range all {
		if c.IsAdmin && c.Name != name {
			return nil
		}
	}
	return types.NewValidationError("client %q is the last admin and cannot be demoted", name)
}

// RemoveClient deletes a client and evicts it from both caches. Tokens it already holds stop
// validating once the caches no longer know its key.
func (a *Authority) RemoveClient(ctx context.Context, name string) error {
	name = types.NormalizeClientName(name)
	defer a.evict(name)

	if err := a.clients.DeleteClient(ctx, name); err != nil {
		return err
	}
	a.logger.Info("Client removed", log.Client(name))
	return nil
}

// GetClient returns a client by name.
func (a *Authority) GetClient(ctx context.Context, name string) (*types.Client, error) {
	return a.clients.GetClient(ctx, types.NormalizeClientName(name))
}

// ListClients returns every client.
func (a *Authority) ListClients(ctx context.Context) ([]*types.Client, error) {
	return a.clients.ListClients(ctx)
}

// PurgeCaches drops expired entries from both caches and returns how many were removed.
func (a *Authority) PurgeCaches() int {
	return a.keyCache.Purge() + a.adminCache.Purge()
}

// CacheStats returns counters of the private key and admin caches.
func (a *Authority) CacheStats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"private_keys": a.keyCache.Stats(),
		"admin_facts":  a.adminCache.Stats(),
	}
}

// TokenExpiration returns the configured token lifetime.
func (a *Authority) TokenExpiration() time.Duration { return a.expiration }
