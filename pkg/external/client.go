// Package external contains the typed adapters for the interaction data
// providers together with their resilience and caching wrappers. Every adapter
// turns a provider specific payload into a domain.RawSourceSignal.
package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/medconsensus-server/internal/domain"
)

// ErrNoRecord is returned by the HTTP layer when a provider answers 404.
// Adapters translate it into an absent signal.
var ErrNoRecord = errors.New("provider has no record")

const maxResponseBytes = 4 << 20

// httpClient is the shared HTTP plumbing of all provider adapters.
type httpClient struct {
	name      string
	baseURL   string
	apiKey    string
	bearer    bool // send apiKey as a bearer token instead of a query parameter
	timeout   time.Duration
	client    *http.Client
	rateLimit *rate.Limiter
}

func newHTTPClient(name string, config domain.ProviderConfig, defaultURL string) httpClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultURL
	}
	if config.Timeout == 0 {
		config.Timeout = 8 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4
	}

	return httpClient{
		name:    name,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		timeout: config.Timeout,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Name returns the provider name used in signals.
func (c *httpClient) Name() string { return c.name }

// Timeout returns the per-call timeout of the provider.
func (c *httpClient) Timeout() time.Duration { return c.timeout }

// get performs a rate limited GET and returns the raw body.
func (c *httpClient) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(ctx, req)
}

// postJSON performs a rate limited POST with a JSON body and returns the raw body.
func (c *httpClient) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(ctx, req)
}

func (c *httpClient) do(ctx context.Context, req *http.Request) ([]byte, error) {
	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.bearer && c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoRecord
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", c.name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", c.name, err)
	}
	return body, nil
}

// describeEvidence trims provider text to a readable length.
func describeEvidence(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= limit {
		return text
	}
	cut := strings.LastIndex(text[:limit], " ")
	if cut <= 0 {
		cut = limit
	}
	return text[:cut] + "..."
}
