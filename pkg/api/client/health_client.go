package client

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mac-/configurine/pkg/api/service"
	"github.com/mac-/configurine/pkg/log"
)

// HealthClient queries server health and version.
type HealthClient struct {
	client *Client
	logger log.Logger
}

// NewHealthClient creates a new health client.
func NewHealthClient(client *Client) *HealthClient {
	return &HealthClient{
		client: client,
		logger: client.logger.WithComponent("health-client"),
	}
}

// GetHealth returns the health report. An unhealthy server still returns its report, along
// with an error.
func (h *HealthClient) GetHealth() (*service.HealthReport, error) {
	ctx, cancel := h.client.Context()
	defer cancel()

	var report service.HealthReport
	err := h.client.do(ctx, http.MethodGet, "/healthz", nil, nil, &report)
	if err == nil {
		return &report, nil
	}
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusServiceUnavailable {
		// The body of an unhealthy response is the report itself.
		if jerr := json.Unmarshal([]byte(apiErr.Message), &report); jerr == nil && report.Status != "" {
			return &report, fmt.Errorf("server is unhealthy: store %s", report.Store)
		}
	}
	return nil, err
}

// GetVersion returns the server build information.
func (h *HealthClient) GetVersion() (map[string]string, error) {
	ctx, cancel := h.client.Context()
	defer cancel()

	out := map[string]string{}
	if err := h.client.do(ctx, http.MethodGet, "/version", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
