package contentfetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 60 * time.Second

// Config captures the runtime settings required to talk to the fetch service.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
}

// Client wraps the content fetch-and-extract HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a fetch client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        Config{BaseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"), TimeoutSeconds: cfg.TimeoutSeconds},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Request names the page to fetch. UseCache skips the network fetch when the
// service already holds extracted content for the URL.
type Request struct {
	URL      string `json:"url"`
	UseCache bool   `json:"use_cache,omitempty"`
}

// Result is a successful fetch: the key of the cached extracted content plus
// alternate identifiers discovered in the page.
type Result struct {
	ContentKey     string   `json:"content_key"`
	AltIdentifiers []string `json:"alt_identifiers"`
}

// Fetch retrieves and extracts page content for an item.
func (c *Client) Fetch(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("contentfetch: url required")
	}
	if c.cfg.BaseURL == "" {
		return nil, fmt.Errorf("contentfetch: base url not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("contentfetch: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/fetch", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("contentfetch: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("contentfetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("contentfetch: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contentfetch error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("contentfetch: parse response: %w", err)
	}
	if strings.TrimSpace(result.ContentKey) == "" {
		return nil, fmt.Errorf("contentfetch error: response missing content key")
	}
	return &result, nil
}

// Content returns the cached extracted content previously stored under a key.
func (c *Client) Content(ctx context.Context, key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("contentfetch: content key required")
	}
	if c.cfg.BaseURL == "" {
		return "", fmt.Errorf("contentfetch: base url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/content/"+key, nil)
	if err != nil {
		return "", fmt.Errorf("contentfetch: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("contentfetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("contentfetch: read content: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("contentfetch error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

// HealthCheck verifies the fetch endpoint is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("contentfetch health: base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("contentfetch health: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contentfetch health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("contentfetch health: status %d", resp.StatusCode)
	}
	return nil
}
