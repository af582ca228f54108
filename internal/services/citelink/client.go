package citelink

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

const defaultHTTPTimeout = 30 * time.Second

// Config captures the runtime settings required to talk to the citation linker.
type Config struct {
	BaseURL        string
	TimeoutSeconds int
}

// Client wraps the citation-linking HTTP API.
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

// NewClient constructs a citation-linker client using the supplied configuration.
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

// Request identifies the resource to resolve. Identifier takes precedence
// over URL when both are set.
type Request struct {
	URL        string `json:"url,omitempty"`
	Identifier string `json:"identifier,omitempty"`
}

// Result is a successful resolution: a reference key plus raw fields.
type Result struct {
	CitationKey string            `json:"citation_key"`
	Fields      map[string]string `json:"fields"`
}

// Resolve asks the citation linker for bibliographic data.
func (c *Client) Resolve(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.URL) == "" && strings.TrimSpace(req.Identifier) == "" {
		return nil, fmt.Errorf("citelink resolve: url or identifier required")
	}
	if c.cfg.BaseURL == "" {
		return nil, fmt.Errorf("citelink resolve: base url not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("citelink resolve: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/resolve", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("citelink resolve: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("citelink resolve: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("citelink resolve: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("citelink error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("citelink resolve: parse response: %w", err)
	}
	if strings.TrimSpace(result.CitationKey) == "" {
		return nil, fmt.Errorf("citelink error: response missing citation key")
	}
	if result.Fields == nil {
		result.Fields = map[string]string{}
	}
	return &result, nil
}

// HealthCheck verifies the linker endpoint is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("citelink health: base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("citelink health: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("citelink health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("citelink health: status %d", resp.StatusCode)
	}
	return nil
}
