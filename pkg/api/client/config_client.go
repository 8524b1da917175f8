package client

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/mac-/configurine/pkg/log"
	"github.com/mac-/configurine/pkg/types"
)

// ConfigClient manages and resolves config entries.
type ConfigClient struct {
	client *Client
	logger log.Logger
}

// NewConfigClient creates a new config client.
func NewConfigClient(client *Client) *ConfigClient {
	return &ConfigClient{
		client: client,
		logger: client.logger.WithComponent("config-client"),
	}
}

// QueryOptions selects entries for List. Associations use the application|name|version and
// environment|name forms.
type QueryOptions struct {
	Names        []string
	Associations []string
	IsActive     *bool
}

func (q QueryOptions) values() url.Values {
	v := url.Values{}
	for _, n := range q.Names {
		v.Add("names", n)
	}
	for _, a := range q.Associations {
		v.Add("associations", a)
	}
	if q.IsActive != nil {
		v.Set("isActive", strconv.FormatBool(*q.IsActive))
	}
	return v
}

// Get returns the entry with the given ID.
func (c *ConfigClient) Get(id string) (*types.ConfigEntry, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var entry types.ConfigEntry
	if err := c.client.do(ctx, http.MethodGet, "/config/"+url.PathEscape(id), nil, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List runs an association query.
func (c *ConfigClient) List(q QueryOptions) ([]*types.ConfigEntry, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var entries []*types.ConfigEntry
	if err := c.client.do(ctx, http.MethodGet, "/config", q.values(), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Resolve returns the most specific entry named name for the given tags.
func (c *ConfigClient) Resolve(name string, tags []types.Tag) (*types.ConfigEntry, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	q := url.Values{"name": {name}}
	for _, t := range tags {
		q.Add("tags", t.String())
	}
	var entry types.ConfigEntry
	if err := c.client.do(ctx, http.MethodGet, "/config/resolve", q, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create stores a new entry and returns it with its ID.
func (c *ConfigClient) Create(entry *types.ConfigEntry) (*types.ConfigEntry, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var created types.ConfigEntry
	if err := c.client.do(ctx, http.MethodPost, "/config", nil, entry, &created); err != nil {
		return nil, err
	}
	c.logger.Debug("Created config entry", log.Str("id", created.ID), log.Str("name", created.Name))
	return &created, nil
}

// Update replaces the entry with the given ID.
func (c *ConfigClient) Update(id string, entry *types.ConfigEntry) error {
	ctx, cancel := c.client.Context()
	defer cancel()
	return c.client.do(ctx, http.MethodPut, "/config/"+url.PathEscape(id), nil, entry, nil)
}

// Delete removes the entry with the given ID.
func (c *ConfigClient) Delete(id string) error {
	ctx, cancel := c.client.Context()
	defer cancel()
	return c.client.do(ctx, http.MethodDelete, "/config/"+url.PathEscape(id), nil, nil, nil)
}
