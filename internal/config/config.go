package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
)

// Duration is a time.Duration that unmarshals from strings like "10s" in both
// TOML files and environment variables.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Decode implements envdecode.Decoder.
func (d *Duration) Decode(repl string) error {
	return d.UnmarshalText([]byte(repl))
}

// Value returns the underlying time.Duration.
func (d Duration) Value() time.Duration { return time.Duration(d) }

// Config is the server configuration. Values resolve in three layers:
// built-in defaults, then an optional TOML file, then environment overrides.
type Config struct {
	// ListenAddr is the TCP address the HTTP server binds.
	ListenAddr string `toml:"listen_addr" env:"WEATHERWIRE_LISTEN_ADDR"`

	// PublicEndpoint is the externally visible MCP endpoint URL; its path
	// determines routing.
	PublicEndpoint string `toml:"public_endpoint" env:"WEATHERWIRE_PUBLIC_ENDPOINT"`

	// UpstreamBaseURL is the weather API base URL.
	UpstreamBaseURL string `toml:"upstream_base_url" env:"WEATHERWIRE_UPSTREAM_BASE_URL"`

	// UpstreamTimeout bounds each outbound weather API request.
	UpstreamTimeout Duration `toml:"upstream_timeout" env:"WEATHERWIRE_UPSTREAM_TIMEOUT"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level" env:"WEATHERWIRE_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		ListenAddr:      ":8080",
		PublicEndpoint:  "http://localhost:8080/mcp",
		UpstreamBaseURL: "https://api.weather.gov",
		UpstreamTimeout: Duration(10 * time.Second),
		LogLevel:        "info",
	}
}

// Load resolves the configuration. path names an optional TOML file; an empty
// path skips the file layer. Environment variables always win.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// envdecode reports ErrNoTargetFieldsAreSet when the environment carries
	// no overrides at all; that is fine here.
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	u, err := url.Parse(c.PublicEndpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("public_endpoint must be an absolute URL: %q", c.PublicEndpoint)
	}
	if _, err := url.Parse(c.UpstreamBaseURL); err != nil {
		return fmt.Errorf("upstream_base_url invalid: %w", err)
	}
	if c.UpstreamTimeout.Value() <= 0 {
		return fmt.Errorf("upstream_timeout must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error: %q", c.LogLevel)
	}
	return nil
}
