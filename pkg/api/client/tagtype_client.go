package client

import (
	"net/http"
	"net/url"

	"github.com/mac-/configurine/pkg/types"
)

// TagTypeClient manages the tag type priority table.
type TagTypeClient struct {
	client *Client
}

// NewTagTypeClient creates a new tag type client.
func NewTagTypeClient(client *Client) *TagTypeClient {
	return &TagTypeClient{client: client}
}

// List returns tag types ordered by descending priority.
func (c *TagTypeClient) List() ([]*types.TagType, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var all []*types.TagType
	if err := c.client.do(ctx, http.MethodGet, "/tagtypes", nil, nil, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (c *TagTypeClient) Create(name string, priority int) (*types.TagType, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var created types.TagType
	if err := c.client.do(ctx, http.MethodPost, "/tagtypes", nil, types.TagType{Name: name, Priority: priority}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update changes the priority of a tag type.
func (c *TagTypeClient) Update(name string, priority int) (*types.TagType, error) {
	ctx, cancel := c.client.Context()
	defer cancel()

	var updated types.TagType
	body := types.TagType{Name: name, Priority: priority}
	if err := c.client.do(ctx, http.MethodPut, "/tagtypes/"+url.PathEscape(name), nil, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (c *TagTypeClient) Delete(name string) error {
	ctx, cancel := c.client.Context()
	defer cancel()
	return c.client.do(ctx, http.MethodDelete, "/tagtypes/"+url.PathEscape(name), nil, nil, nil)
}
