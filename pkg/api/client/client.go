// Package client is a Go client for the configurine REST API.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mac-/configurine/internal/config"
	"github.com/mac-/configurine/pkg/api/rest"
	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// ClientOptions holds configuration options for the API client.
type ClientOptions struct {
	// Address of the API server, such as http://localhost:8088. A bare host:port gets the
	// http or https scheme depending on UseTLS.
	Address string

	// TLS configuration
	UseTLS      bool
	TLSCertFile string

	// Token is sent as a bearer token. Login replaces it.
	Token string

	// CallTimeout bounds each request.
	CallTimeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	Logger log.Logger
}

// DefaultClientOptions returns the default client options.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		Address:     fmt.Sprintf("http://localhost:%d", config.DefaultHTTPPort),
		CallTimeout: 30 * time.Second,
		Logger:      log.GetDefaultLogger().WithComponent("api-client"),
	}
}

// Client provides access to the configurine API.
type Client struct {
	options *ClientOptions
	baseURL *url.URL
	http    *http.Client
	logger  log.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a new API client with the given options.
func NewClient(options *ClientOptions) (*Client, error) {
	if options == nil {
		options = DefaultClientOptions()
	}

	logger := options.Logger
	if logger == nil {
		logger = log.GetDefaultLogger().WithComponent("api-client")
	}

	base, err := parseAddress(options.Address, options.UseTLS)
	if err != nil {
		return nil, err
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if options.UseTLS && options.TLSCertFile != "" {
			pem, err := os.ReadFile(options.TLSCertFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("no certificates found in %s", options.TLSCertFile)
			}
			transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
		}
		httpClient = &http.Client{Transport: transport}
	}

	return &Client{
		options: options,
		baseURL: base,
		http:    httpClient,
		logger:  logger,
		token:   options.Token,
	}, nil
}

func parseAddress(addr string, useTLS bool) (*url.URL, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("server address is required")
	}
	if !strings.Contains(addr, "://") {
		scheme := "http"
		if useTLS {
			scheme = "https"
		}
		addr = scheme + "://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q in server address", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// Address returns the server base URL.
func (c *Client) Address() string { return c.baseURL.String() }

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Context returns a context with the configured call timeout.
func (c *Client) Context() (context.Context, context.CancelFunc) {
	if c.options.CallTimeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), c.options.CallTimeout)
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Category   string
	Message    string
	EntryIDs   []string
}

func (e *APIError) Error() string {
	if len(e.EntryIDs) > 0 {
		return fmt.Sprintf("%s (%d): %s [entries: %s]", e.Category, e.StatusCode, e.Message, strings.Join(e.EntryIDs, ", "))
	}
	return fmt.Sprintf("%s (%d): %s", e.Category, e.StatusCode, e.Message)
}

// Category returns the error category of err, whether it came from the server or was
// produced locally.
func Category(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return types.Category(err)
}

// IsNotFound reports whether err is a not found response.
func IsNotFound(err error) bool {
	return Category(err) == types.CategoryNotFound
}

// do sends a request and decodes a JSON response into out when out is not nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.baseURL.Host, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("API call", log.Str("method", method), log.Str("path", path),
		log.Int("status", resp.StatusCode), log.Duration("duration", time.Since(start)))

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body rest.ErrorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		apiErr.Category = body.Error
		apiErr.Message = body.Message
		apiErr.EntryIDs = body.EntryIDs
		return apiErr
	}
	apiErr.Category = categoryForStatus(resp.StatusCode)
	apiErr.Message = strings.TrimSpace(string(raw))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func categoryForStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return types.CategoryValidation
	case http.StatusUnauthorized:
		return types.CategoryUnauthorized
	case http.StatusForbidden:
		return types.CategoryForbidden
	case http.StatusNotFound:
		return types.CategoryNotFound
	case http.StatusConflict:
		return types.CategoryConflict
	case http.StatusServiceUnavailable:
		return types.CategoryUnavailable
	default:
		return types.CategoryInternal
	}
}
