package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Option applies configuration to a Config instance.
type Option func(*Config) error

// Load constructs a Config by applying the supplied options on top of defaults.
func Load(opts ...Option) (*Config, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WithEnv applies environment variable overrides. Variables that are unset
// leave the current value in place.
func WithEnv() Option {
	return func(c *Config) error {
		if err := cleanenv.ReadEnv(c); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}
		return nil
	}
}

// WithFile reads a YAML, JSON, TOML or .env file, then applies environment
// overrides on top of it.
func WithFile(path string) Option {
	return func(c *Config) error {
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithBackend selects the storage backend
func WithBackend(backend string) Option {
	return func(c *Config) error {
		if backend == "" {
			return fmt.Errorf("backend cannot be empty")
		}
		c.Backend = backend
		return nil
	}
}

// WithFilesystem selects the fs backend rooted at baseDir
func WithFilesystem(baseDir, signingKey string) Option {
	return func(c *Config) error {
		c.Backend = BackendFS
		c.FS.BaseDir = baseDir
		c.FS.SigningKey = signingKey
		return nil
	}
}

// WithPrefixTemplate sets the owner prefix template, e.g. "venues/%d/"
func WithPrefixTemplate(template string) Option {
	return func(c *Config) error {
		c.Resource.PrefixTemplate = template
		return nil
	}
}

// WithLinkTTL sets the lifetime of shareable links
func WithLinkTTL(ttl time.Duration) Option {
	return func(c *Config) error {
		c.Resource.LinkTTL = ttl
		return nil
	}
}

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *Config) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Server.Port = port
		return nil
	}
}

// Usage returns the description of every environment variable.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return text
}
