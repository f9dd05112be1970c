package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("database.postgres_dsn is required"))
	}

	if cfg.Limits.SearchTimeout < 0 {
		errs = append(errs, fmt.Errorf("limits.search_timeout %s is negative", cfg.Limits.SearchTimeout))
	}
	if cfg.Limits.HTTPTimeout < 0 {
		errs = append(errs, fmt.Errorf("limits.http_timeout %s is negative", cfg.Limits.HTTPTimeout))
	}
	if cfg.Limits.SandboxTimeout < 0 {
		errs = append(errs, fmt.Errorf("limits.sandbox_timeout %s is negative", cfg.Limits.SandboxTimeout))
	}
	if cfg.Limits.MaxBodyChars < 0 {
		errs = append(errs, fmt.Errorf("limits.max_body_chars %d is negative", cfg.Limits.MaxBodyChars))
	}
	if cfg.Limits.UsageBuffer < 0 {
		errs = append(errs, fmt.Errorf("limits.usage_buffer %d is negative", cfg.Limits.UsageBuffer))
	}
	if cfg.Limits.BreakerThreshold < 0 {
		errs = append(errs, fmt.Errorf("limits.breaker_threshold %d is negative", cfg.Limits.BreakerThreshold))
	}

	if cfg.Search.Endpoint != "" && !strings.HasPrefix(cfg.Search.Endpoint, "http://") && !strings.HasPrefix(cfg.Search.Endpoint, "https://") {
		errs = append(errs, fmt.Errorf("search.endpoint %q must be an http(s) URL", cfg.Search.Endpoint))
	}

	if cfg.MCP.Enabled && cfg.MCP.Path != "" && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
	}
	if cfg.MCP.Enabled && cfg.MCP.ServiceToken == "" {
		errs = append(errs, errors.New("mcp.service_token is required when mcp is enabled"))
	}

	if cfg.CORS.AllowedOrigin == "" {
		slog.Debug("cors.allowed_origin not set; defaulting to *")
	}

	return errors.Join(errs...)
}
