// Package scoutclient implements the Scout Service v2 HTTP client of
// spec.md §6.2. Out of scope per §1 beyond its interface, so this is
// deliberately thin: one POST, one body shape, three auth schemes.
package scoutclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lazyscout/lazyscout/internal/geoutil"
)

// Location is a (lat, lon) pair before 5-decimal rounding.
type Location struct {
	Lat, Lon float64
}

// Options mirrors the Scout Service v2 "options" object, with the
// defaults of §6.2.
type Options struct {
	Pokemon                bool `json:"pokemon"`
	PokemonEncounterRadius int  `json:"pokemon_encounter_radius"`
	GMF                    bool `json:"gmf"`
	Routes                 bool `json:"routes"`
	Showcases              bool `json:"showcases"`
}

// DefaultOptions returns the §6.2 default options object.
func DefaultOptions() Options {
	return Options{Pokemon: true, PokemonEncounterRadius: 70, GMF: false, Routes: false, Showcases: false}
}

type scoutRequest struct {
	Username  string      `json:"username"`
	Locations [][2]float64 `json:"locations"`
	Options   Options     `json:"options"`
}

// Client is the Scout Service collaborator the dispatcher calls.
type Client interface {
	ScoutSingle(ctx context.Context, loc Location) error
	ScoutMulti(ctx context.Context, locs []Location) error
}

// HTTPClient is the real §6.2 implementation.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	bearer     string
	apiKey     string
	options    Options
}

// New creates an HTTPClient. Any combination of basic auth, bearer
// token and API key may be configured simultaneously (§6.2).
func New(baseURL, username, password, bearer, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		username:   username,
		password:   password,
		bearer:     bearer,
		apiKey:     apiKey,
		options:    DefaultOptions(),
	}
}

func (c *HTTPClient) ScoutSingle(ctx context.Context, loc Location) error {
	return c.scout(ctx, []Location{loc})
}

func (c *HTTPClient) ScoutMulti(ctx context.Context, locs []Location) error {
	return c.scout(ctx, locs)
}

func (c *HTTPClient) scout(ctx context.Context, locs []Location) error {
	locations := make([][2]float64, 0, len(locs))
	for _, l := range locs {
		locations = append(locations, [2]float64{geoutil.RoundTo5(l.Lat), geoutil.RoundTo5(l.Lon)})
	}

	body, err := json.Marshal(scoutRequest{Username: c.username, Locations: locations, Options: c.options})
	if err != nil {
		return fmt.Errorf("encode scout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scout/v2", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build scout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("scout request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("scout service returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}
