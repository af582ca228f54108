package extract

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

const (
	jsonResponseType   = "json_object"
	defaultHTTPTimeout = 45 * time.Second
	defaultBaseURL     = "https://openrouter.ai/api/v1/chat/completions"
)

// Config captures the runtime settings required to talk to the extraction model.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client wraps the chat completion API used for metadata extraction.
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

// NewClient constructs an extraction client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = defaultBaseURL
	}
	return client
}

// Extraction is the payload the model returns for a metadata extraction run.
type Extraction struct {
	Fields       map[string]string `json:"fields"`
	QualityScore int               `json:"quality_score"`
}

const systemPrompt = "You extract bibliographic metadata from web page content. " +
	"Respond with JSON: {\"fields\": {\"title\": ..., \"author\": ..., \"date\": ..., \"url\": ...}, " +
	"\"quality_score\": 0-100 confidence that the fields describe the cited work}."

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Extract runs the model over cached page content and parses its structured
// reply.
func (c *Client) Extract(ctx context.Context, content string) (*Extraction, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("extractor error: empty content")
	}
	if c.cfg.Model == "" {
		return nil, fmt.Errorf("extractor error: model not configured")
	}

	reqBody := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: content},
		},
		ResponseFormat: &responseFormat{Type: jsonResponseType},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("extractor error: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("extractor error: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("extractor error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("extractor error: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extractor error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("extractor error: parse response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("extractor error: response has no choices")
	}

	var extraction Extraction
	if err := json.Unmarshal([]byte(parsed.Choices[0].Message.Content), &extraction); err != nil {
		return nil, fmt.Errorf("extractor error: parse model output: %w", err)
	}
	if extraction.Fields == nil {
		extraction.Fields = map[string]string{}
	}
	if extraction.QualityScore < 0 {
		extraction.QualityScore = 0
	}
	if extraction.QualityScore > 100 {
		extraction.QualityScore = 100
	}
	return &extraction, nil
}

// HealthCheck sends a minimal request to verify connectivity and credentials.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, err := c.Extract(ctx, "health check: respond with empty fields and quality_score 0")
	return err
}
