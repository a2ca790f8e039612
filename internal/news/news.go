// Package news relays market-news requests to the upstream news API so the
// API key stays on the server and the browser talks to a single origin.
package news

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nelsonwm45/senti-mochi-go/internal/config"
)

// maxBodyBytes caps a relayed response; upstream pages are far smaller.
const maxBodyBytes = 1 << 20

// allowedEndpoints is the closed set of upstream paths the relay will touch.
var allowedEndpoints = map[string]bool{
	"top-headlines": true,
	"everything":    true,
}

// Client fetches from the upstream news API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a news client from configuration.
func NewClient(cfg config.NewsConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{},
	}
}

// Allowed reports whether endpoint may be relayed.
func (c *Client) Allowed(endpoint string) bool {
	return allowedEndpoints[endpoint]
}

// Fetch performs an upstream GET and returns the raw body and status code,
// both of which are relayed to the browser untouched. The caller's query
// parameters pass through; the API key is attached here.
func (c *Client) Fetch(ctx context.Context, endpoint string, query url.Values) ([]byte, int, error) {
	if !c.Allowed(endpoint) {
		return nil, 0, fmt.Errorf("endpoint %q not allowed", endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, 0, err
	}
	return body, resp.StatusCode, nil
}
