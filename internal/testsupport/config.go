package testsupport

import (
	"path/filepath"
	"testing"

	"folio/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.CiteLink.BaseURL = "http://127.0.0.1:0"
	cfg.ContentFetch.BaseURL = "http://127.0.0.1:0"
	cfg.Extract.APIKey = "test"
	cfg.Extract.BaseURL = "http://127.0.0.1:0"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithCiteLinkURL points the citation-linking client at a test server.
func WithCiteLinkURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.CiteLink.BaseURL = url
	}
}

// WithContentFetchURL points the content fetch client at a test server.
func WithContentFetchURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.ContentFetch.BaseURL = url
	}
}

// WithExtractURL points the extraction client at a test server.
func WithExtractURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Extract.BaseURL = url
	}
}
