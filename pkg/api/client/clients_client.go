package client

import (
	"net/http"
	"net/url"

	"github.com/mac-/configurine/pkg/types"
)

// ClientsClient registers and administers API clients.
type ClientsClient struct {
	client *Client
}

// NewClientsClient creates a new client administration client.
func NewClientsClient(client *Client) *ClientsClient {
	return &ClientsClient{client: client}
}

// Register creates an unconfirmed client. No token is needed.
func (c *ClientsClient) Register(spec types.ClientSpec) (*types.ClientView, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var view types.ClientView
	if err := c.client.do(ctx, http.MethodPost, "/clients", nil, spec, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// List returns every client. Admin only.
func (c *ClientsClient) List() ([]*types.ClientView, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var views []*types.ClientView
	if err := c.client.do(ctx, http.MethodGet, "/clients", nil, nil, &views); err != nil {
		return nil, err
	}
	return views, nil
}

// Get returns one client. Admins may read any client; others only themselves.
func (c *ClientsClient) Get(name string) (*types.ClientView, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var view types.ClientView
	if err := c.client.do(ctx, http.MethodGet, "/clients/"+url.PathEscape(name), nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Update applies a partial update. Admin only.
func (c *ClientsClient) Update(name string, update types.ClientUpdate) (*types.ClientView, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var view types.ClientView
	if err := c.client.do(ctx, http.MethodPut, "/clients/"+url.PathEscape(name), nil, update, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Delete removes a client. Admin only.
func (c *ClientsClient) Delete(name string) error {
	ctx, cancel := c.client.Context()
	defer cancel()
	return c.client.do(ctx, http.MethodDelete, "/clients/"+url.PathEscape(name), nil, nil, nil)
}
