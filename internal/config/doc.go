// Package config loads, validates, and normalizes the TOML configuration
// shared by the CLI and the processing engine.
package config
