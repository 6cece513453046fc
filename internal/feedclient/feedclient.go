// Package feedclient defines the collaborator both internal/handler and
// internal/mqttbridge hand parsed sightings to, and a thin stub client
// for the Sightings Feed registration endpoint. Out of scope per §1
// beyond this interface: sightings reach this service via webhook/MQTT
// push, never by this service polling or registering itself, so Client
// exists for symmetry with scoutclient.HTTPClient's auth shape rather
// than for any call this service actually makes at runtime.
package feedclient

import (
	"context"
	"net/http"
	"time"

	"github.com/lazyscout/lazyscout/internal/sighting"
)

// Sink is the destination for parsed sightings, implemented by
// webhookfilter.Filter.
type Sink interface {
	ScoutFeed(s sighting.Sighting)
	CensusFeed(s sighting.Sighting)
}

// Client is an unused-at-runtime stub for registering this service as a
// webhook target with an upstream Sightings Feed. Kept minimal: no
// production code path calls it, it exists only so tests can exercise
// the same auth-header shape scoutclient.HTTPClient uses.
type Client struct {
	httpClient *http.Client
	baseURL    string
	bearer     string
}

// New creates a Client.
func New(baseURL, bearer string, timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}, baseURL: baseURL, bearer: bearer}
}

// Ping checks that the upstream feed endpoint is reachable. An empty
// base URL returns nil without a request. No route, including
// GET /health, calls it.
func (c *Client) Ping(ctx context.Context) error {
	if c.baseURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
